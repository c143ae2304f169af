package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/voluntr/engine/app"
	"github.com/voluntr/engine/config"
	"github.com/voluntr/engine/core/errs"
	"github.com/voluntr/engine/core/model"
	"github.com/voluntr/engine/infra/logger"
)

var routeFlags struct {
	user     string
	category string
	priority string
	language string
	message  string
}

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Inject a test support request and print the routing decision",
	RunE:  routeRequest,
}

func init() {
	routeCmd.Flags().StringVar(&routeFlags.user, "user", "test-user", "requesting user address")
	routeCmd.Flags().StringVar(&routeFlags.category, "category", string(model.CategoryGeneral), "request category")
	routeCmd.Flags().StringVar(&routeFlags.priority, "priority", string(model.PriorityMedium), "request priority")
	routeCmd.Flags().StringVar(&routeFlags.language, "language", "en", "preferred language")
	routeCmd.Flags().StringVar(&routeFlags.message, "message", "test request", "initial message")
	rootCmd.AddCommand(routeCmd)
}

func routeRequest(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("route-command").Errorf("service close: %v", err)
		}
	}()

	if err := svc.Directory.ForceRefresh(ctx); err != nil {
		return fmt.Errorf("directory refresh: %w", err)
	}

	req := model.SupportRequest{
		RequestID:      uuid.NewString(),
		UserAddress:    routeFlags.user,
		Category:       model.Category(routeFlags.category),
		Priority:       model.Priority(routeFlags.priority),
		Language:       routeFlags.language,
		InitialMessage: routeFlags.message,
		Timestamp:      time.Now(),
	}
	sess, err := svc.Dispatcher.RouteRequest(ctx, req)
	if err != nil {
		if errs.IsValidation(err) {
			return fmt.Errorf("invalid request: %w", err)
		}
		return err
	}
	if sess.Status == model.SessionWaiting {
		fmt.Printf("session %s queued (no acceptable volunteer)\n", sess.SessionID)
		return nil
	}
	fmt.Printf("session %s assigned to %s\n", sess.SessionID, sess.VolunteerAddress())
	return nil
}
