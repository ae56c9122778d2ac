// Package kernel holds the upscale compute kernel and everything that must
// agree with it: the workgroup size used for grid computation, the push
// parameter block layout, and a CPU reference that mirrors the shader.
//
// The WGSL source is a template. WorkgroupSize and EntryPoint are
// substituted at render time, so the literal 16 appears in exactly one place.
package kernel
