package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/xhad/ragbot/internal/models"
	"github.com/xhad/ragbot/pkg/chat"
	"github.com/xhad/ragbot/pkg/ingest"
	"github.com/xhad/ragbot/pkg/llm"
	"github.com/xhad/ragbot/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.New(server.Config{
				Addr:        cfg.Addr(),
				Mode:        cfg.Server.Mode,
				CORSOrigins: cfg.Server.CORSOrigins,
			}, a.chat, a.ingest, a.repo)

			color.Cyan("Listening on %s", cfg.Addr())
			return srv.Run(ctx)
		},
	}
}

func newIngestCmd() *cobra.Command {
	var (
		chatbotID int64
		url       string
		repo      string
		file      string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a website, GitHub repository or local file into a chatbot",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := ingestRequest(url, repo, file)
			if err != nil {
				return err
			}

			var pages int32
			a, err := buildApp(cmd.Context(), cfg, func(string) { atomic.AddInt32(&pages, 1) })
			if err != nil {
				return err
			}
			defer a.Close()

			color.Blue("\nStarting ingestion for chatbot %d\n", chatbotID)

			var bar *progressbar.ProgressBar
			spinner := getSpinner(" Collecting documents...")
			progress := func(done, total int, doc models.Document) {
				if bar == nil {
					spinner.Finish()
					bar = getProgressBar(total, " Embedding documents")
				}
				_ = bar.Set(done)
				bar.Describe(color.BlueString(" Embedding %s", label(doc)))
			}

			result, err := a.ingest.Ingest(cmd.Context(), chatbotID, req, progress)
			if bar != nil {
				_ = bar.Finish()
			} else {
				_ = spinner.Finish()
			}
			if err != nil {
				return err
			}

			if n := atomic.LoadInt32(&pages); n > 0 {
				color.Green("✓ Crawled %d pages", n)
			}
			color.Green("✓ %s: %d documents, %d embeddings", result.Message, result.TotalDocuments, result.TotalEmbeddings)
			return nil
		},
	}

	cmd.Flags().Int64Var(&chatbotID, "chatbot", 0, "Chatbot ID")
	cmd.Flags().StringVar(&url, "url", "", "Documentation site to crawl")
	cmd.Flags().StringVar(&repo, "github", "", "GitHub repository as owner/repo")
	cmd.Flags().StringVar(&file, "file", "", "Local file to ingest as one document")
	_ = cmd.MarkFlagRequired("chatbot")
	cmd.MarkFlagsMutuallyExclusive("url", "github", "file")
	return cmd
}

func ingestRequest(url, repo, file string) (ingest.Request, error) {
	switch {
	case url != "":
		return ingest.Request{SourceType: ingest.SourceWebsite, URL: url}, nil
	case repo != "":
		return ingest.Request{SourceType: ingest.SourceGitHub, GithubRepo: repo}, nil
	case file != "":
		content, err := os.ReadFile(file)
		if err != nil {
			return ingest.Request{}, fmt.Errorf("failed to read %s: %w", file, err)
		}
		contentType := "text"
		switch strings.ToLower(filepath.Ext(file)) {
		case ".md", ".mdx":
			contentType = "markdown"
		case ".html", ".htm":
			contentType = "web_page"
		}
		return ingest.Request{
			Content:     string(content),
			URL:         "file://" + file,
			ContentType: contentType,
			Metadata:    map[string]interface{}{"source": "file", "path": file},
		}, nil
	default:
		return ingest.Request{}, errors.New("one of --url, --github or --file is required")
	}
}

func label(doc models.Document) string {
	if doc.Title != "" {
		return doc.Title
	}
	if doc.URL != "" {
		return doc.URL
	}
	return fmt.Sprintf("document %d", doc.ID)
}

func newChatCmd() *cobra.Command {
	var chatbotID int64

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a chatbot from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			bot, err := a.repo.GetChatbot(cmd.Context(), chatbotID)
			if err != nil {
				return err
			}
			return chatLoop(cmd.Context(), a.chat, bot)
		},
	}

	cmd.Flags().Int64Var(&chatbotID, "chatbot", 0, "Chatbot ID")
	_ = cmd.MarkFlagRequired("chatbot")
	return cmd
}

func chatLoop(ctx context.Context, orchestrator *chat.Orchestrator, bot *models.Chatbot) error {
	color.Cyan("\nChat with %s (type 'exit' to quit)", bot.Name)

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	var sessionID string
	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if strings.ToLower(query) == "exit" {
			break
		}
		if query == "" {
			continue
		}

		spinner := getSpinner(" Thinking...")
		resp, err := orchestrator.Chat(ctx, bot.ID, chat.ChatRequest{Message: query, SessionID: sessionID})
		_ = spinner.Finish()
		fmt.Print("\r")

		if err != nil {
			if stage, ok := llm.StageOf(err); ok {
				color.Red("Error (%s, %s): %v\n", stage, llm.KindOf(err), err)
			} else {
				color.Red("Error: %v\n", err)
			}
			continue
		}

		sessionID = resp.SessionID
		assistantPrompt("\nAssistant: %s\n", resp.Response)
	}

	return scanner.Err()
}

func newChatbotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatbot",
		Short: "Manage chatbots",
	}

	var name, description string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a chatbot",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			bot := &models.Chatbot{Name: name, Description: description}
			if err := a.repo.CreateChatbot(cmd.Context(), bot); err != nil {
				return err
			}
			color.Green("✓ Created chatbot %q with ID %d", bot.Name, bot.ID)
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "Chatbot name")
	create.Flags().StringVar(&description, "description", "", "Chatbot description")
	_ = create.MarkFlagRequired("name")

	var chatbotID int64
	docs := &cobra.Command{
		Use:   "documents",
		Short: "List a chatbot's documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.repo.ListDocuments(cmd.Context(), chatbotID)
			if err != nil {
				return err
			}
			for _, d := range list {
				status := color.GreenString(string(d.Status))
				if d.Status != models.StatusComplete {
					status = color.YellowString(string(d.Status))
				}
				fmt.Printf("%6d  %-8s  %4d chunks  %s\n", d.ID, status, d.EmbeddingCount, d.URL)
			}
			return nil
		},
	}
	docs.Flags().Int64Var(&chatbotID, "chatbot", 0, "Chatbot ID")
	_ = docs.MarkFlagRequired("chatbot")

	cmd.AddCommand(create, docs)
	return cmd
}
