package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu"
)

// baseShaderWGSL draws a single triangle from the vertex index alone, so the
// pipeline has no vertex buffers or bind groups. The fragment output is a
// constant tint that lands on top of the captured layer.
const baseShaderWGSL = `
@vertex
fn vs_main(@builtin(vertex_index) in_vertex_index: u32) -> @builtin(position) vec4<f32> {
    let x = f32(i32(in_vertex_index) - 1);
    let y = f32(i32(in_vertex_index & 1u) * 2 - 1);
    return vec4<f32>(x, y, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(0.0, 1.0, 0.0, 1.0);
}
`

// baseVertexCount is the number of vertices drawn by the base pipeline.
const baseVertexCount = 3

// validateWGSL compiles src with naga and returns the first diagnostic.
// Device-side shader creation treats parse failures as non-fatal, so this
// is the only point where a broken built-in shader is caught early.
func validateWGSL(src string) error {
	if _, err := naga.Compile(src); err != nil {
		return fmt.Errorf("gpu: validate shader: %w", err)
	}
	return nil
}

// pipeline holds the single render pipeline and the objects it depends on.
type pipeline struct {
	module *wgpu.ShaderModule
	layout *wgpu.PipelineLayout
	render *wgpu.RenderPipeline
	format gputypes.TextureFormat
}

// newPipeline builds the fixed base pipeline for the given target format:
// one vertex and one fragment stage, no vertex buffers, alpha blending.
func newPipeline(device *wgpu.Device, format gputypes.TextureFormat) (*pipeline, error) {
	if err := validateWGSL(baseShaderWGSL); err != nil {
		return nil, err
	}

	module, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: "overlay_base_shader",
		WGSL:  baseShaderWGSL,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create shader module: %w", err)
	}

	layout, err := device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label: "overlay_base_layout",
	})
	if err != nil {
		module.Release()
		return nil, fmt.Errorf("gpu: create pipeline layout: %w", err)
	}

	blend := gputypes.BlendStateAlpha()
	render, err := device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "overlay_base_pipeline",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Primitive:   gputypes.PrimitiveState{Topology: gputypes.PrimitiveTopologyTriangleList},
		Multisample: gputypes.DefaultMultisampleState(),
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{{
				Format:    format,
				Blend:     &blend,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
	})
	if err != nil {
		layout.Release()
		module.Release()
		return nil, fmt.Errorf("gpu: create render pipeline: %w", err)
	}

	return &pipeline{
		module: module,
		layout: layout,
		render: render,
		format: format,
	}, nil
}

func (p *pipeline) release() {
	if p == nil {
		return
	}
	if p.render != nil {
		p.render.Release()
	}
	if p.layout != nil {
		p.layout.Release()
	}
	if p.module != nil {
		p.module.Release()
	}
}
