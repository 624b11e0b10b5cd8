package conversions

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/google/uuid"
	"github.com/hbomb79/Verto/internal/api/util"
	"github.com/hbomb79/Verto/internal/conversion"
	"github.com/hbomb79/Verto/internal/engine"
	"github.com/hbomb79/Verto/internal/service"
)

var (
	ErrPathInputsDisabled   = errors.New("path inputs are not enabled on this server")
	ErrPathOutsideRoot      = errors.New("input path is outside of the input root")
	ErrUnknownArtworkSource = errors.New("artwork_source must name one of the inputs")
)

type (
	// InputDto is a single input of a conversion request. Inputs refer either to
	// a file already on the server (Path) beneath the configured input root, or
	// carry their (base64) content.
	InputDto struct {
		Name string `json:"name" validate:"required_without=Path"`
		Path string `json:"path" validate:"required_without=Data"`
		Data []byte `json:"data"`
	}

	CreateRequest struct {
		Inputs        []InputDto     `json:"inputs" validate:"required,min=1,dive"`
		IsImage       bool           `json:"is_image"`
		Overrides     map[string]any `json:"overrides"`
		SkipTrim      bool           `json:"skip_trim"`
		Artwork       bool           `json:"artwork"`
		ArtworkSource string         `json:"artwork_source"`
		Extension     string         `json:"extension" validate:"omitempty,alphanum"`
		Name          string         `json:"name"`
	}

	OutputDto struct {
		OperationID uuid.UUID `json:"operation_id"`
		Name        string    `json:"name"`
		Extension   string    `json:"extension"`
		Location    string    `json:"location"`
	}

	ResultDto struct {
		RequestID uuid.UUID   `json:"request_id"`
		Outputs   []OutputDto `json:"outputs"`
	}
)

func (request CreateRequest) toModel() service.Request {
	return service.Request{
		Inputs:    util.ApplyConversion(request.Inputs, func(in InputDto) engine.Input { return engine.Input{Name: in.Name, Path: in.Path, Data: in.Data} }),
		IsImage:   request.IsImage,
		Overrides: request.Overrides,
		Flags: conversion.OperationFlags{
			Artwork:       request.Artwork,
			ArtworkSource: request.ArtworkSource,
			Extension:     request.Extension,
			SkipTrim:      request.SkipTrim,
			SuggestedName: request.Name,
		},
	}
}

// check confines every path input to the root provided, and ensures the
// artwork source names one of the inputs.
func (request CreateRequest) check(inputRoot string) error {
	names := make([]string, len(request.Inputs))
	for i, in := range request.Inputs {
		if in.Path != "" && in.Data == nil {
			if err := confine(inputRoot, in.Path); err != nil {
				return err
			}
		}

		names[i] = engine.Input{Name: in.Name, Path: in.Path}.StagedName()
	}

	if request.ArtworkSource != "" && !slices.Contains(names, request.ArtworkSource) {
		return fmt.Errorf("%w: %s", ErrUnknownArtworkSource, request.ArtworkSource)
	}

	return nil
}

func confine(root string, path string) error {
	if root == "" {
		return ErrPathInputsDisabled
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %s is not absolute", ErrPathOutsideRoot, path)
	}

	if !within(root, path) {
		return fmt.Errorf("%w: %s", ErrPathOutsideRoot, path)
	}

	// Symlinks beneath the root must not lead out of it
	resolvedRoot, rootErr := filepath.EvalSymlinks(root)
	resolved, err := filepath.EvalSymlinks(path)
	if rootErr == nil && err == nil && !within(resolvedRoot, resolved) {
		return fmt.Errorf("%w: %s", ErrPathOutsideRoot, path)
	}

	return nil
}

func within(root string, path string) bool {
	rel, err := filepath.Rel(root, filepath.Clean(path))
	return err == nil && filepath.IsLocal(rel)
}

func NewResultDto(result service.Result) ResultDto {
	outputs := make([]OutputDto, len(result.Outputs))
	for i, out := range result.Outputs {
		outputs[i] = OutputDto{OperationID: out.OperationID, Name: out.Name, Extension: out.Extension}
		if i < len(result.Saved) {
			outputs[i].Location = result.Saved[i]
		}
	}

	return ResultDto{RequestID: result.RequestID, Outputs: outputs}
}
