package pipe

import (
	"strings"
)

// ValidationResult is a set of reasons a draw or dispatch could not be issued. Zero means valid.
type ValidationResult uint32

const ValidationSuccessful ValidationResult = 0

const (
	ValidationNotDrawing ValidationResult = 1 << iota
	ValidationMissingMaterial
	ValidationUndefinedTopology
	ValidationMissingVertexShader
	ValidationMissingVertexBuffer
	ValidationInvalidVertexLayout
	ValidationMissingIndexBuffer
	ValidationMissingOutput
	ValidationMissingConstantBuffer
	ValidationMissingResource
	ValidationMissingSampler
	ValidationMissingUnorderedAccess
	ValidationMissingComputeShader
	ValidationInvalidThreadGroupCounts
)

var validationNames = []struct {
	flag ValidationResult
	name string
}{
	{ValidationNotDrawing, "NotDrawing"},
	{ValidationMissingMaterial, "MissingMaterial"},
	{ValidationUndefinedTopology, "UndefinedTopology"},
	{ValidationMissingVertexShader, "MissingVertexShader"},
	{ValidationMissingVertexBuffer, "MissingVertexBuffer"},
	{ValidationInvalidVertexLayout, "InvalidVertexLayout"},
	{ValidationMissingIndexBuffer, "MissingIndexBuffer"},
	{ValidationMissingOutput, "MissingOutput"},
	{ValidationMissingConstantBuffer, "MissingConstantBuffer"},
	{ValidationMissingResource, "MissingResource"},
	{ValidationMissingSampler, "MissingSampler"},
	{ValidationMissingUnorderedAccess, "MissingUnorderedAccess"},
	{ValidationMissingComputeShader, "MissingComputeShader"},
	{ValidationInvalidThreadGroupCounts, "InvalidThreadGroupCounts"},
}

// Has reports whether every flag of f is set.
func (r ValidationResult) Has(f ValidationResult) bool {
	return r&f == f
}

func (r ValidationResult) String() string {
	if r == ValidationSuccessful {
		return "Successful"
	}
	var parts []string
	for _, n := range validationNames {
		if r&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
