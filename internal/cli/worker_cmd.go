package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mahirjain10/convertkit/internal/queue"
)

func newWorkerCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Serve conversion requests from RabbitMQ",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := st.cfg.RequireRabbitMQ(); err != nil {
				return err
			}
			enc, err := newLocalEncoder(st.cfg, st.logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			worker := queue.NewWorker(st.cfg.RabbitMQ.URL, st.cfg.RabbitMQ.RequestQueue, st.cfg.RabbitMQ.Workers, enc, st.logger)
			st.logger.Info("[worker] application initialized successfully", "queue", st.cfg.RabbitMQ.RequestQueue,
				"workers", st.cfg.RabbitMQ.Workers)
			return worker.Start(ctx)
		},
	}
}
