package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mahirjain10/convertkit/internal/orchestrator"
	"github.com/mahirjain10/convertkit/internal/resize"
	"github.com/mahirjain10/convertkit/internal/source"
	"github.com/mahirjain10/convertkit/internal/types"
	"github.com/mahirjain10/convertkit/internal/utils"
	"github.com/mahirjain10/convertkit/internal/watch"
)

type convertFlags struct {
	format string
	mode   string
	value  string
	out    string
	watch  bool
	remote bool
}

func newConvertCmd(st *state) *cobra.Command {
	flags := &convertFlags{}
	cmd := &cobra.Command{
		Use:   "convert <file | s3://bucket/key>",
		Short: "Resize and re-encode an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runConvert(ctx, st, flags, args[0], cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "output format: webp, jpg, ico, png, bmp (default from config)")
	cmd.Flags().StringVar(&flags.mode, "resize", "auto", "resize mode: auto, width, height")
	cmd.Flags().StringVar(&flags.value, "value", "", "target width or height in pixels")
	cmd.Flags().StringVarP(&flags.out, "out", "o", "", "write the converted image to this path")
	cmd.Flags().BoolVarP(&flags.watch, "watch", "w", false, "convert again whenever the file changes")
	cmd.Flags().BoolVar(&flags.remote, "remote", false, "send the conversion to the RabbitMQ worker")
	return cmd
}

// outputFormat keeps unknown names as they are so the encoder reports them.
func outputFormat(name string) types.Format {
	if f, err := types.ParseFormat(name); err == nil {
		return f
	}
	return types.Format(strings.ToLower(strings.TrimSpace(name)))
}

func runConvert(ctx context.Context, st *state, flags *convertFlags, ref string, out io.Writer) error {
	mode, err := resize.ParseMode(flags.mode)
	if err != nil {
		return err
	}
	if flags.watch && strings.HasPrefix(ref, "s3://") {
		return errors.New("--watch needs a local file")
	}
	formatName := flags.format
	if formatName == "" {
		formatName = st.cfg.Converter.DefaultFormat
	}

	app, err := NewApp(st.cfg, st.logger, flags.remote)
	if err != nil {
		return err
	}
	defer app.Close()

	loader, err := app.Loader(ctx, ref)
	if err != nil {
		return err
	}

	failures := &failureLog{}
	if err := app.bus.Subscribe(orchestrator.TopicState, func(change orchestrator.StateChange) {
		st.logger.Debug("[convert] state", "from", change.From.String(), "to", change.To.String(), "detail", change.Message)
		failures.record(change)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to state changes: %w", err)
	}

	sourceSink := newTerminalSink("source", out)
	convertedSink := newTerminalSink("converted", out)
	orch := orchestrator.New(orchestrator.Options{
		Encoder:   app.encoder,
		Source:    sourceSink,
		Converted: convertedSink,
		Bus:       app.bus,
		Logger:    st.logger,
		Format:    outputFormat(formatName),
	})
	orch.SetResizeSpec(ctx, resize.Spec{Mode: mode, Value: resize.ParseValue(flags.value)})

	once := func() error {
		file, err := loader.Load(ctx, ref)
		if err != nil {
			return err
		}
		orch.Select(ctx, []source.Descriptor{file})
		orch.Wait()
		return finish(orch, convertedSink, failures.last(), flags.out, out)
	}

	firstErr := once()
	if !flags.watch {
		return firstErr
	}
	if firstErr != nil {
		st.logger.Warn("[convert] conversion failed, still watching", "error", firstErr)
	}

	watcher, err := watch.New(ref, watch.DefaultDebounce, st.logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", ref)
	return watcher.Run(ctx, func(string) {
		if err := once(); err != nil {
			st.logger.Warn("[convert] conversion failed", "error", err)
		}
	})
}

// finish writes the converted file when the run ended in Converted.
func finish(orch *orchestrator.Orchestrator, converted *terminalSink, failure, outPath string, out io.Writer) error {
	switch orch.State() {
	case orchestrator.Converted:
	case orchestrator.Failed:
		return errors.New(failure)
	default:
		return fmt.Errorf("conversion ended in state %s", orch.State())
	}
	if outPath == "" {
		return nil
	}

	file, ok := converted.File()
	if !ok {
		return errors.New("no converted image to write")
	}
	raw, err := utils.DecodeDataURI(file.Content)
	if err != nil {
		return err
	}
	path, err := utils.PathUtil(outPath)
	if err != nil {
		return err
	}
	if err := utils.WriteImageBuffer(path, raw); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved %s (%s)\n", path, utils.FormatBytes(len(raw)))
	return nil
}

// failureLog keeps the message of the latest transition into Failed.
type failureLog struct {
	mu      sync.Mutex
	message string
}

func (f *failureLog) record(change orchestrator.StateChange) {
	if change.To != orchestrator.Failed {
		return
	}
	f.mu.Lock()
	f.message = change.Message
	f.mu.Unlock()
}

func (f *failureLog) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.message
}

// terminalSink prints preview updates as labelled lines and remembers the
// last file it was given.
type terminalSink struct {
	mu    sync.Mutex
	label string
	w     io.Writer
	file  *source.Descriptor
}

func newTerminalSink(label string, w io.Writer) *terminalSink {
	return &terminalSink{label: label, w: w}
}

func (s *terminalSink) SetFile(d source.Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file = &d
	fmt.Fprintf(s.w, "[%s] %s (%s)\n", s.label, d.Name, d.Type)
}

func (s *terminalSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file = nil
}

func (s *terminalSink) SetMessage(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "[%s] %s\n", s.label, msg)
}

func (s *terminalSink) File() (source.Descriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return source.Descriptor{}, false
	}
	return *s.file, true
}
