package cmds

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/taomfnbd/chamalloW/pkg/attachments"
	"github.com/taomfnbd/chamalloW/pkg/events"
	"github.com/taomfnbd/chamalloW/pkg/settings"
	"github.com/taomfnbd/chamalloW/pkg/webhook"
)

func NewAgentCommand() *cobra.Command {
	var instructions []string
	var keywords []string
	var documents []string

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Push knowledge-base instructions, documents and keywords to the agent webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := buildAgentConfig(instructions, keywords, documents)
			if err != nil {
				return err
			}
			return publishConfig(cmd.Context(), events.TopicAgentConfig, config)
		},
	}

	cmd.Flags().StringArrayVarP(&instructions, "instruction", "i", nil, "Instruction as context:text (contexts: general, photo, instagram, linkedin)")
	cmd.Flags().StringArrayVarP(&keywords, "keyword", "k", nil, "Keyword to reinforce")
	cmd.Flags().StringArrayVarP(&documents, "document", "d", nil, "Path to a knowledge-base document")

	return cmd
}

func buildAgentConfig(instructions []string, keywords []string, documents []string) (*events.AgentConfig, error) {
	config := &events.AgentConfig{
		Instructions: map[string][]string{},
		Keywords:     keywords,
		UpdatedAt:    time.Now(),
	}

	for _, instruction := range instructions {
		tab, text, found := strings.Cut(instruction, ":")
		if !found {
			tab, text = "general", instruction
		}
		config.Instructions[tab] = append(config.Instructions[tab], text)
	}

	for _, path := range documents {
		name := filepath.Base(path)
		config.Documents = append(config.Documents,
			attachments.NewDocument(name, path, attachments.MediaTypeFromExtension(filepath.Ext(name))))
	}

	return config, nil
}

// publishConfig runs the event router long enough for the side-channel
// forwarder to pick up a single configuration event.
func publishConfig(ctx context.Context, topic string, payload interface{}) error {
	cfg, err := settings.NewFromViper()
	if err != nil {
		return err
	}

	router, err := events.NewEventRouter(events.WithVerbose(viper.GetBool("verbose")))
	if err != nil {
		return err
	}

	sideChannel := webhook.NewSideChannel(cfg.AgentWebhook, cfg.PlanningWebhook)
	sideChannel.RegisterHandlers(router)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, groupCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(groupCtx)
	})
	eg.Go(func() error {
		defer cancel()
		select {
		case <-router.Running():
		case <-groupCtx.Done():
			return groupCtx.Err()
		}
		// publish blocks until the forwarder acked the message
		if err := router.Publish(topic, payload); err != nil {
			return errors.Wrap(err, "failed to publish configuration")
		}
		return router.Close()
	})

	return eg.Wait()
}
