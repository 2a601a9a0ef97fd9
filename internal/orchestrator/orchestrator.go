package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	evbus "github.com/asaskevich/EventBus"

	"github.com/mahirjain10/convertkit/internal/apperrors"
	"github.com/mahirjain10/convertkit/internal/encoder"
	"github.com/mahirjain10/convertkit/internal/resize"
	"github.com/mahirjain10/convertkit/internal/source"
	"github.com/mahirjain10/convertkit/internal/transformation"
	"github.com/mahirjain10/convertkit/internal/types"
	"github.com/mahirjain10/convertkit/internal/utils"
)

const processingMessage = "Processing..."

// PreviewSink is one preview surface. Calls are made while the orchestrator
// holds its lock, so a sink must not call back into the orchestrator.
type PreviewSink interface {
	SetFile(d source.Descriptor)
	Clear()
	SetMessage(msg string)
}

// ProbeFunc returns the natural size of the image held in a data URI.
type ProbeFunc func(content string) (width, height int, err error)

type SourceImage struct {
	Descriptor source.Descriptor
	Width      int
	Height     int
}

type Options struct {
	Encoder   encoder.Encoder
	Probe     ProbeFunc
	Source    PreviewSink
	Converted PreviewSink
	// Bus receives a StateChange on TopicState for every transition. Optional.
	Bus    evbus.Bus
	Logger *slog.Logger
	Format types.Format
}

// Orchestrator drives select -> probe -> plan -> encode. Every public method
// returns without waiting for the asynchronous work it starts. Each stream
// (probe, convert) is tagged with a generation and results from superseded
// generations are dropped, so the preview always reflects the latest input.
type Orchestrator struct {
	mu        sync.Mutex
	pubMu     sync.Mutex
	wg        sync.WaitGroup
	enc       encoder.Encoder
	probe     ProbeFunc
	source    PreviewSink
	converted PreviewSink
	bus       evbus.Bus
	logger    *slog.Logger

	image      *SourceImage
	spec       resize.Spec
	format     types.Format
	target     resize.Dimensions
	state      State
	probeGen   uint64
	convertGen uint64
	pending    []StateChange
}

type conversion struct {
	gen  uint64
	name string
	dims resize.Dimensions
	req  types.ConversionRequest
}

func New(opts Options) *Orchestrator {
	probe := opts.Probe
	if probe == nil {
		probe = transformation.Probe
	}
	format := opts.Format
	if format == "" {
		format = types.WEBP
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	src, converted := opts.Source, opts.Converted
	if src == nil {
		src = nopSink{}
	}
	if converted == nil {
		converted = nopSink{}
	}
	return &Orchestrator{
		enc:       opts.Encoder,
		probe:     probe,
		source:    src,
		converted: converted,
		bus:       opts.Bus,
		logger:    logger,
		spec:      resize.Spec{Mode: resize.ModeAuto},
		format:    format,
		state:     Idle,
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Source returns the probed image, or nil while nothing usable is selected.
func (o *Orchestrator) Source() *SourceImage {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.image == nil {
		return nil
	}
	img := *o.image
	return &img
}

// Target returns the dimensions of the most recently dispatched conversion.
func (o *Orchestrator) Target() resize.Dimensions {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.target
}

func (o *Orchestrator) Spec() resize.Spec {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.spec
}

// Wait blocks until every probe and conversion started so far has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Select starts probing the first file. The previous image is dropped at once,
// and its in-flight conversions become stale.
func (o *Orchestrator) Select(ctx context.Context, files []source.Descriptor) {
	if len(files) == 0 {
		return
	}
	file := files[0]

	o.mu.Lock()
	o.probeGen++
	gen := o.probeGen
	o.convertGen++
	o.image = nil
	o.source.SetMessage(processingMessage)
	o.setStateLocked(Probing, file.Name)
	o.wg.Add(1)
	o.mu.Unlock()
	o.flush()

	o.logger.Debug("[orchestrator] probing", "file", file.Name, "generation", gen)
	go o.runProbe(ctx, gen, file)
}

// SetResizeMode switches the resize mode. Width and Height start from the
// natural size of the current image, as the value field does in the UI.
func (o *Orchestrator) SetResizeMode(ctx context.Context, mode resize.Mode) {
	o.mu.Lock()
	o.spec.Mode = mode
	if o.image != nil {
		switch mode {
		case resize.ModeWidth:
			o.spec.Value = o.image.Width
		case resize.ModeHeight:
			o.spec.Value = o.image.Height
		}
	}
	o.mu.Unlock()
	o.Convert(ctx)
}

// SetResizeValue stores the raw value of the resize field. Unparsable input
// leaves the planner to fall back to the natural size.
func (o *Orchestrator) SetResizeValue(ctx context.Context, raw string) {
	o.mu.Lock()
	o.spec.Value = resize.ParseValue(raw)
	o.mu.Unlock()
	o.Convert(ctx)
}

// SetResizeSpec replaces the whole resize spec without seeding the value.
func (o *Orchestrator) SetResizeSpec(ctx context.Context, spec resize.Spec) {
	o.mu.Lock()
	o.spec = spec
	o.mu.Unlock()
	o.Convert(ctx)
}

func (o *Orchestrator) SetFormat(ctx context.Context, format types.Format) {
	o.mu.Lock()
	o.format = format
	o.mu.Unlock()
	o.Convert(ctx)
}

// Convert dispatches a conversion of the current image with the current
// settings. It does nothing when no probed image is present.
func (o *Orchestrator) Convert(ctx context.Context) {
	o.mu.Lock()
	c, ok := o.prepareLocked()
	if ok {
		o.wg.Add(1)
	}
	o.mu.Unlock()
	o.flush()

	if ok {
		go o.runConvert(ctx, c)
	}
}

func (o *Orchestrator) runProbe(ctx context.Context, gen uint64, file source.Descriptor) {
	defer o.wg.Done()

	width, height, err := o.probe(file.Content)

	o.mu.Lock()
	if gen != o.probeGen {
		o.mu.Unlock()
		o.logger.Debug("[orchestrator] dropping stale probe", "file", file.Name, "generation", gen)
		return
	}
	if err != nil {
		msg := userMessage(err)
		o.source.SetMessage(msg)
		o.converted.Clear()
		o.setStateLocked(Failed, msg)
		o.mu.Unlock()
		o.flush()
		o.logger.Warn("[orchestrator] probe failed", "file", file.Name, "error", err)
		return
	}

	o.image = &SourceImage{Descriptor: file, Width: width, Height: height}
	size := utils.Base64Size(file.Content)
	o.source.SetMessage(fmt.Sprintf("Dimensions: %d x %d  Size: %s", width, height, utils.FormatBytes(size)))
	o.source.SetFile(file)
	o.setStateLocked(Ready, "")

	c, ok := o.prepareLocked()
	if ok {
		o.wg.Add(1)
	}
	o.mu.Unlock()
	o.flush()

	if ok {
		go o.runConvert(ctx, c)
	}
}

// prepareLocked plans the next conversion and moves to Converting. It must be
// called with o.mu held.
func (o *Orchestrator) prepareLocked() (conversion, bool) {
	if o.image == nil || !utils.IsDataURI(o.image.Descriptor.Content) {
		return conversion{}, false
	}

	dims, err := resize.Plan(o.image.Width, o.image.Height, o.spec)
	if err != nil {
		msg := userMessage(err)
		o.converted.SetMessage(msg)
		o.converted.Clear()
		o.setStateLocked(Failed, msg)
		return conversion{}, false
	}

	o.convertGen++
	o.target = dims
	o.converted.SetMessage(processingMessage)
	o.converted.Clear()
	o.setStateLocked(Converting, dims.String())

	return conversion{
		gen:  o.convertGen,
		name: convertedName(o.image.Descriptor.Name, o.format),
		dims: dims,
		req:  encoder.NewRequest(o.image.Descriptor.Content, dims.Width, dims.Height, o.format),
	}, true
}

func (o *Orchestrator) runConvert(ctx context.Context, c conversion) {
	defer o.wg.Done()

	o.logger.Debug("[orchestrator] converting", "id", c.req.ID, "size", c.dims.String(), "format", c.req.Format)
	result := o.enc.Encode(ctx, c.req)

	o.mu.Lock()
	if c.gen != o.convertGen {
		o.mu.Unlock()
		o.logger.Debug("[orchestrator] dropping stale conversion", "id", c.req.ID, "generation", c.gen)
		return
	}
	if result.Failed() {
		o.converted.SetMessage(result.Message)
		o.converted.Clear()
		o.setStateLocked(Failed, result.Message)
		o.mu.Unlock()
		o.flush()
		o.logger.Warn("[orchestrator] conversion failed", "id", c.req.ID, "error", result.Err())
		return
	}

	converted := source.FromDataURI(c.name, result.Payload, result.MimeType)
	o.converted.SetMessage(fmt.Sprintf("Dimensions: %s  Size: %s", c.dims, utils.FormatBytes(converted.Size)))
	o.converted.SetFile(converted)
	o.setStateLocked(Converted, c.dims.String())
	o.mu.Unlock()
	o.flush()
}

func (o *Orchestrator) setStateLocked(to State, message string) {
	change := StateChange{From: o.state, To: to, Message: message}
	o.state = to
	o.pending = append(o.pending, change)
}

// flush publishes queued transitions in the order they happened.
func (o *Orchestrator) flush() {
	o.pubMu.Lock()
	defer o.pubMu.Unlock()

	o.mu.Lock()
	events := o.pending
	o.pending = nil
	o.mu.Unlock()

	if o.bus == nil {
		return
	}
	for _, e := range events {
		o.bus.Publish(TopicState, e)
	}
}

func userMessage(err error) string {
	var typed *apperrors.Error
	if errors.As(err, &typed) {
		return typed.Message
	}
	return err.Error()
}

func convertedName(name string, format types.Format) string {
	if name == "" {
		return "converted." + string(format)
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + "." + string(format)
}

type nopSink struct{}

func (nopSink) SetFile(source.Descriptor) {}
func (nopSink) Clear()                    {}
func (nopSink) SetMessage(string)         {}
