package cmds

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/taomfnbd/chamalloW/pkg/attachments"
	"github.com/taomfnbd/chamalloW/pkg/chat"
	"github.com/taomfnbd/chamalloW/pkg/events"
	"github.com/taomfnbd/chamalloW/pkg/persist"
	"github.com/taomfnbd/chamalloW/pkg/settings"
	"github.com/taomfnbd/chamalloW/pkg/webhook"
)

func NewChatCommand() *cobra.Command {
	var platformFlag string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat session against the generation webhooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			platform := chat.Platform(platformFlag)
			if !platform.Valid() {
				return fmt.Errorf("unknown platform %q", platformFlag)
			}
			return runChat(cmd.Context(), platform)
		},
	}

	cmd.Flags().StringVarP(&platformFlag, "platform", "p", string(chat.PlatformLinkedIn), "Platform context (linkedin, instagram, images)")

	return cmd
}

func runChat(ctx context.Context, platform chat.Platform) error {
	cfg, err := settings.NewFromViper()
	if err != nil {
		return err
	}

	router, err := events.NewEventRouter(events.WithVerbose(viper.GetBool("verbose")))
	if err != nil {
		return err
	}
	defer func() {
		_ = router.Close()
	}()

	sideChannel := webhook.NewSideChannel(cfg.AgentWebhook, cfg.PlanningWebhook)
	sideChannel.RegisterHandlers(router)
	router.AddHandler("error-banner", events.TopicErrors, func(msg *message.Message) error {
		fmt.Fprintf(os.Stderr, "! %s\n", string(msg.Payload))
		return nil
	})

	publisher := events.NewPublisherManager()
	publisher.SubscribePublisher(events.TopicErrors, router.Publisher)

	store := chat.NewStore(
		chat.WithGenerator(webhook.NewClient(cfg.Endpoints(),
			webhook.WithRelayURL(cfg.RelayURL),
			webhook.WithSessionID(cfg.SessionID),
		)),
		chat.WithPersister(persist.NewFileStore(cfg.HistoryFile)),
		chat.WithPublisher(publisher),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, groupCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(groupCtx)
	})
	eg.Go(func() error {
		defer cancel()
		repl(groupCtx, store, platform)
		return nil
	})

	return eg.Wait()
}

func repl(ctx context.Context, store *chat.Store, platform chat.Platform) {
	fmt.Printf("chamallow — platform %s (type /help for commands)\n", platform)

	var pending []*attachments.Attachment
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := command(ctx, store, &platform, &pending, line); quit {
				return
			}
			continue
		}

		if err := store.SendMessage(ctx, platform, line, pending); err != nil {
			log.Debug().Err(err).Msg("send failed")
		}
		pending = nil

		if notice := store.Notice(); notice != "" {
			fmt.Println(notice)
			continue
		}
		printLastReply(store)
	}
}

func command(ctx context.Context, store *chat.Store, platform *chat.Platform, pending *[]*attachments.Attachment, line string) bool {
	parts := strings.Fields(line)
	switch parts[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Println("/platform <p>  /new  /list  /select <n>  /delete <n>")
		fmt.Println("/attach <path>  /edit <n> <text>  /validate <n>  /regenerate <n>  /quit")
	case "/platform":
		if len(parts) < 2 || !chat.Platform(parts[1]).Valid() {
			fmt.Println("usage: /platform linkedin|instagram|images")
			break
		}
		*platform = chat.Platform(parts[1])
		fmt.Printf("switched to %s\n", *platform)
	case "/new":
		store.NewConversation(*platform)
	case "/list":
		for i, conv := range store.Conversations() {
			marker := " "
			if cur := store.CurrentConversation(); cur != nil && cur.ID == conv.ID {
				marker = "*"
			}
			fmt.Printf("%s %2d | %-9s | %s\n", marker, i, conv.Platform, conv.Title)
		}
	case "/select":
		if conv := conversationAt(store, parts); conv != nil {
			store.SelectConversation(conv.ID)
			*platform = conv.Platform
			fmt.Printf("selected %q (%s)\n", conv.Title, conv.Platform)
		}
	case "/delete":
		if conv := conversationAt(store, parts); conv != nil {
			store.DeleteConversation(conv.ID)
		}
	case "/attach":
		if len(parts) < 2 {
			fmt.Println("usage: /attach <path>")
			break
		}
		path := parts[1]
		mimeType := attachments.MediaTypeFromExtension(filepath.Ext(path))
		att := attachments.NewReference(attachments.TypeForMime(mimeType), path, filepath.Base(path))
		*pending = append(*pending, att)
		fmt.Printf("attached %s (%s)\n", att.Name, att.Type)
	case "/edit":
		if msg := messageAt(store, parts); msg != nil && len(parts) >= 3 {
			store.UpdateMessage(msg.ID, strings.Join(parts[2:], " "))
		}
	case "/validate":
		if msg := messageAt(store, parts); msg != nil {
			store.ValidateMessage(msg.ID)
		}
	case "/regenerate":
		if msg := messageAt(store, parts); msg != nil {
			if err := store.RegenerateMessage(ctx, msg.ID); err != nil {
				log.Debug().Err(err).Msg("regenerate failed")
			}
			if notice := store.Notice(); notice != "" {
				fmt.Println(notice)
			}
		}
	default:
		fmt.Printf("unknown command %s\n", parts[0])
	}
	return false
}

func conversationAt(store *chat.Store, parts []string) *chat.Conversation {
	if len(parts) < 2 {
		fmt.Println("missing conversation index")
		return nil
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil || idx < 0 || idx >= len(store.Conversations()) {
		fmt.Println("invalid conversation index")
		return nil
	}
	return store.Conversations()[idx]
}

func messageAt(store *chat.Store, parts []string) *chat.Message {
	conv := store.CurrentConversation()
	if conv == nil {
		fmt.Println("no active conversation")
		return nil
	}
	if len(parts) < 2 {
		fmt.Println("missing message index")
		return nil
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil || idx < 0 || idx >= len(conv.Messages) {
		fmt.Println("invalid message index")
		return nil
	}
	return conv.Messages[idx]
}

func printLastReply(store *chat.Store) {
	conv := store.CurrentConversation()
	if conv == nil || len(conv.Messages) == 0 {
		return
	}
	msg := conv.Messages[len(conv.Messages)-1]
	if msg.Role != chat.RoleAssistant {
		return
	}
	fmt.Println(msg.Content)
	if msg.Score > 0 {
		fmt.Printf("(score: %d)\n", msg.Score)
	}
	for _, att := range msg.Attachments {
		fmt.Printf("[%s] %s\n", att.Type, att.URI())
	}
}
