package models

import (
	"strings"
)

type Operation string

const (
	OpConvert  Operation = "convert"
	OpSlim     Operation = "slim"
	OpUpscale  Operation = "upscale"
	OpCompress Operation = "compress"
	OpExtract  Operation = "extract"
)

var ValidOperations = map[Operation]bool{
	OpConvert:  true,
	OpSlim:     true,
	OpUpscale:  true,
	OpCompress: true,
	OpExtract:  true,
}

func ParseOperation(s string) (Operation, bool) {
	op := Operation(strings.ToLower(strings.TrimSpace(s)))
	return op, ValidOperations[op]
}

type Category string

const (
	CategoryImage   Category = "image"
	CategoryVideo   Category = "video"
	CategoryAudio   Category = "audio"
	CategoryPDF     Category = "pdf"
	CategoryArchive Category = "archive"
)

type Tier string

const (
	TierLight    Tier = "light"
	TierBalanced Tier = "balanced"
	TierExtreme  Tier = "extreme"
)

type ModelVariant string

const (
	VariantPhoto ModelVariant = "photo"
	VariantAnime ModelVariant = "anime"
)

// ParseVariant falls back to the photo model for anything but "anime".
func ParseVariant(s string) ModelVariant {
	if strings.EqualFold(strings.TrimSpace(s), string(VariantAnime)) {
		return VariantAnime
	}
	return VariantPhoto
}

// JobRequest is one user action. Tier and Variant are kept as given; the
// dispatcher resolves defaults.
type JobRequest struct {
	InputPath    string       `json:"inputPath"`
	InputPaths   []string     `json:"inputPaths,omitempty"`
	Operation    Operation    `json:"operation"`
	TargetFormat string       `json:"targetFormat,omitempty"`
	Tier         Tier         `json:"profile,omitempty"`
	OutputDir    string       `json:"outputDir,omitempty"`
	ModelVariant ModelVariant `json:"modelVariant,omitempty"`
	Muted        bool         `json:"muted,omitempty"`
}

// Inputs returns every path the request touches.
func (r JobRequest) Inputs() []string {
	if len(r.InputPaths) > 0 {
		return r.InputPaths
	}
	if r.InputPath == "" {
		return nil
	}
	return []string{r.InputPath}
}

// ToolProfile holds the encoder parameters for one (category, tier) pair.
type ToolProfile struct {
	Category         Category
	Tier             Tier
	Quality          int
	CRF              int
	BitrateThreshold int64
	AudioBitrate     string
	PDFSetting       string
}

type ErrorKind string

const (
	KindUnsupportedFormat   ErrorKind = "UnsupportedFormat"
	KindToolMissing         ErrorKind = "ToolMissing"
	KindToolExecutionFailed ErrorKind = "ToolExecutionFailed"
	KindNoImprovement       ErrorKind = "NoImprovement"
	KindIOFailure           ErrorKind = "IOFailure"
	KindInvalidRequest      ErrorKind = "InvalidRequest"
)

// JobOutcome is the uniform result of every dispatcher entry point.
type JobOutcome struct {
	Success                 bool       `json:"success"`
	OutputPath              *string    `json:"outputPath,omitempty"`
	InputSizeBytes          *int64     `json:"inputSizeBytes,omitempty"`
	OutputSizeBytes         *int64     `json:"outputSizeBytes,omitempty"`
	CompressionRatioPercent *float64   `json:"compressionRatioPercent,omitempty"`
	ErrorKind               *ErrorKind `json:"errorKind,omitempty"`
	ErrorDetail             *string    `json:"errorDetail,omitempty"`
}

func (o JobOutcome) Output() string {
	if o.OutputPath == nil {
		return ""
	}
	return *o.OutputPath
}

func (o JobOutcome) Kind() ErrorKind {
	if o.ErrorKind == nil {
		return ""
	}
	return *o.ErrorKind
}

func (o JobOutcome) Detail() string {
	if o.ErrorDetail == nil {
		return ""
	}
	return *o.ErrorDetail
}

// Failed builds a failure outcome.
func Failed(kind ErrorKind, detail string) JobOutcome {
	return JobOutcome{
		Success:     false,
		ErrorKind:   &kind,
		ErrorDetail: &detail,
	}
}

// CompressionRatio returns (1 - out/in) * 100, or nil when either size is
// unknown or the input is empty.
func CompressionRatio(inputSize, outputSize *int64) *float64 {
	if inputSize == nil || outputSize == nil || *inputSize <= 0 {
		return nil
	}
	ratio := (1 - float64(*outputSize)/float64(*inputSize)) * 100
	return &ratio
}
