package window

import (
	"sync"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	w := New("overlay", 800, 600)
	width, height := w.Size()
	assert.Equal(t, 800, width)
	assert.Equal(t, 600, height)
	assert.Equal(t, 1.0, w.ScaleFactor())
	assert.True(t, w.State().Resizable)
	assert.False(t, w.IsFullscreen())
}

func TestSetSizeFiresResize(t *testing.T) {
	w := New("overlay", 800, 600)
	var got [][2]int
	w.OnResize(func(width, height int) { got = append(got, [2]int{width, height}) })

	w.SetWidth(1024)
	w.SetHeight(768)
	w.SetSize(1024, 768) // unchanged

	assert.Equal(t, [][2]int{{1024, 600}, {1024, 768}}, got)
}

func TestSizeConstraints(t *testing.T) {
	w := New("overlay", 800, 600)
	var last [2]int
	w.OnResize(func(width, height int) { last = [2]int{width, height} })

	w.SetMinimumSize(1000, 700)
	assert.Equal(t, [2]int{1000, 700}, last, "min size grows the window")

	w.SetMaximumSize(1200, 900)
	w.SetSize(5000, 5000)
	assert.Equal(t, [2]int{1200, 900}, last)

	w.SetSize(0, 0)
	assert.Equal(t, [2]int{1000, 700}, last)
}

func TestResizeCallbacksFollowWindowOrder(t *testing.T) {
	w := New("overlay", 200, 100)

	entered := make(chan struct{})
	unblock := make(chan struct{})
	var mu sync.Mutex
	var applied []int
	w.OnResize(func(width, _ int) {
		mu.Lock()
		first := len(applied) == 0
		applied = append(applied, width)
		mu.Unlock()
		if first {
			close(entered)
			<-unblock
		}
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.SetSize(300, 100)
	}()
	<-entered
	go func() {
		defer wg.Done()
		w.SetSize(400, 100)
	}()

	// The second resize waits for the first delivery to finish.
	time.Sleep(20 * time.Millisecond)
	width, _ := w.Size()
	assert.Equal(t, 300, width)

	close(unblock)
	wg.Wait()

	width, _ = w.Size()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{300, 400}, applied)
	assert.Equal(t, width, applied[len(applied)-1])
}

func TestConcurrentWidthAndHeight(t *testing.T) {
	w := New("overlay", 100, 100)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			w.SetWidth(640)
		}()
		go func() {
			defer wg.Done()
			w.SetHeight(480)
		}()
	}
	wg.Wait()

	width, height := w.Size()
	assert.Equal(t, 640, width)
	assert.Equal(t, 480, height)
}

func TestChromeStates(t *testing.T) {
	w := New("overlay", 800, 600)
	var wc gpucontext.WindowChrome = w

	wc.Maximize()
	assert.True(t, wc.IsMaximized())
	wc.Maximize()
	assert.False(t, wc.IsMaximized())

	wc.Minimize()
	w.RequestAttention()
	assert.True(t, w.State().Minimized)
	assert.True(t, w.State().Attention)
	w.Restore()
	assert.False(t, w.State().Minimized)
	assert.False(t, w.State().Attention)

	wc.SetFullscreen(true)
	assert.True(t, wc.IsFullscreen())
	wc.SetFullscreen(false)
	assert.Equal(t, ModeNormal, w.State().Mode)

	wc.SetFrameless(true)
	assert.True(t, wc.IsFrameless())
}

func TestHitTest(t *testing.T) {
	w := New("overlay", 800, 600)
	assert.Equal(t, gpucontext.HitTestClient, w.HitTest(1, 1))

	w.SetHitTestCallback(func(_, y float64) gpucontext.HitTestResult {
		if y < 30 {
			return gpucontext.HitTestCaption
		}
		return gpucontext.HitTestClient
	})
	assert.Equal(t, gpucontext.HitTestCaption, w.HitTest(10, 10))
	assert.Equal(t, gpucontext.HitTestClient, w.HitTest(10, 100))
}

func TestManager(t *testing.T) {
	m := NewManager(nil)
	_, err := m.Main()
	require.ErrorIs(t, err, ErrNotFound)

	w := New("overlay", 1, 1)
	m.Attach(w)
	got, err := m.Main()
	require.NoError(t, err)
	assert.Same(t, w, got)

	w.Close()
	_, err = m.Main()
	assert.ErrorIs(t, err, ErrNotFound)
}
