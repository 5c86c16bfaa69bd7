package commands

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"catalogsync/internal/core/domain"
	"catalogsync/internal/core/services"

	"github.com/spf13/cobra"
)

// NewWatchCommand prints notifications, including pushed new-title events, until interrupted.
func NewWatchCommand() *cobra.Command {
	var (
		configFile string
		logLevel   string
		duration   time.Duration
		views      bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print live catalog events as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			if !cfg.Events.Enabled {
				return fmt.Errorf("live events are disabled, set events.enabled")
			}
			zapLogger := newLogger(cfg, logLevel)
			defer zapLogger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			a, err := newApp(ctx, cfg, zapLogger.Sugar())
			if err != nil {
				return err
			}
			defer a.close()

			if sess, _ := a.sessions.Current(); sess == nil {
				return fmt.Errorf("not signed in, run catalogsync login first")
			}

			p := &eventPrinter{w: cmd.OutOrStdout()}
			unsubscribe := a.notifications.Subscribe(p.notification)
			defer unsubscribe()
			if views {
				for _, v := range a.views() {
					defer v.Subscribe(p.view)()
				}
			}

			if err := a.startLiveSync(); err != nil {
				return err
			}
			p.line("watching %s, press Ctrl+C to stop", cfg.Events.NewMovieTopic)

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "override logging.level")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().BoolVar(&views, "views", false, "also print view state changes")

	return cmd
}

// eventPrinter serializes writes from the notification and view goroutines.
type eventPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *eventPrinter) line(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s "+format+"\n", append([]interface{}{time.Now().Format(time.TimeOnly)}, args...)...)
}

func (p *eventPrinter) notification(ev domain.NotificationEvent) {
	if ev.Kind != domain.NotificationAdded {
		return
	}
	n := ev.Notification
	if n.Link != "" {
		p.line("[%s] %s (%s)", n.Severity, n.Message, n.Link)
		return
	}
	p.line("[%s] %s", n.Severity, n.Message)
}

func (p *eventPrinter) view(snap services.ViewSnapshot) {
	stale := ""
	if snap.Stale {
		stale = " stale"
	}
	p.line("view %s page %d %s%s", snap.Name, snap.Page, snap.Status, stale)
}
