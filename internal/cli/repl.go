// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/localchat/internal/chat"
	"github.com/jeranaias/localchat/internal/config"
	"github.com/jeranaias/localchat/internal/util"
)

// Options configures a REPL.
type Options struct {
	Store  *chat.Store
	Config *config.Config
	Logger *slog.Logger
	Out    io.Writer // defaults to os.Stdout
}

// REPL drives the interactive chat loop against a session store.
type REPL struct {
	store  *chat.Store
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer

	// lastRate holds the most recent tokens/second estimate, updated from
	// the streaming goroutine.
	lastRate atomic.Int64
}

// New creates a REPL.
func New(opts Options) *REPL {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	r := &REPL{
		store:  opts.Store,
		cfg:    opts.Config,
		logger: logger,
		out:    out,
	}

	r.store.SetStreamObserver(func(chatID, delta string) {
		fmt.Fprint(r.out, delta)
	})
	r.store.SetSpeedObserver(func(tokensPerSec int) {
		r.lastRate.Store(int64(tokensPerSec))
	})

	return r
}

// Run reads input until EOF or /quit.
func (r *REPL) Run(ctx context.Context) error {
	in := NewInput()
	defer in.Close()

	fmt.Fprintln(r.out, "localchat - chat with local models")
	fmt.Fprintln(r.out, "Type /help for commands, /quit to exit.")
	fmt.Fprintln(r.out)
	r.printActive()

	for {
		input, err := in.ReadLine("> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Fprintln(r.out, "\nGoodbye.")
			return nil
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if quit := r.dispatch(ctx, input); quit {
				fmt.Fprintln(r.out, "Goodbye.")
				return nil
			}
			continue
		}

		r.send(ctx, input)
	}
}

// dispatch handles one slash command, returning true on /quit.
func (r *REPL) dispatch(ctx context.Context, input string) bool {
	fields := strings.Fields(input)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "/quit", "/q", "/exit":
		return true
	case "/help", "/h":
		r.printHelp()
	case "/models":
		r.cmdModels(ctx)
	case "/new":
		r.cmdNew(args)
	case "/chats":
		r.cmdChats()
	case "/switch":
		r.cmdSwitch(args)
	case "/delete":
		r.cmdDelete(args)
	case "/rename":
		r.cmdRename(args)
	case "/status", "/s":
		r.cmdStatus(ctx)
	default:
		fmt.Fprintf(r.out, "Unknown command %s. Type /help for commands.\n", cmd)
	}
	return false
}

func (r *REPL) printHelp() {
	fmt.Fprint(r.out, `Commands:
  /models           List models available on the server
  /new [model]      Start a new chat (default model if omitted)
  /chats            List chats, newest first
  /switch <n>       Switch to chat number n from /chats
  /delete <n>       Delete chat number n from /chats
  /rename <title>   Rename the active chat
  /status           Show server and session status
  /quit             Exit
`)
}

// =============================================================================
// SEND
// =============================================================================

// send routes a plain input line to the active chat, creating one with the
// default model when none exists.
func (r *REPL) send(ctx context.Context, text string) {
	active, ok := r.store.ActiveChat()
	if !ok {
		id, err := r.store.CreateChat("", r.cfg.DefaultModel)
		if err != nil {
			fmt.Fprintf(r.out, "Cannot start a chat: %v\n", err)
			return
		}
		active, _ = r.store.Chat(id)
		fmt.Fprintf(r.out, "Started a new chat with %s.\n", active.Model)
	}

	if err := r.store.SendMessage(ctx, active.ID, text); err != nil {
		fmt.Fprintf(r.out, "%v\n", err)
		return
	}
	fmt.Fprintln(r.out)

	// SendMessage returns after the stream completes; the finalized reply
	// carries the generation stats.
	if sess, ok := r.store.Chat(active.ID); ok && len(sess.Messages) > 0 {
		last := sess.Messages[len(sess.Messages)-1]
		if last.Role == chat.RoleAssistant && !last.IsError() && last.TokenCount > 0 {
			fmt.Fprintf(r.out, "(%d tokens, %.0f tok/s)\n", last.TokenCount, last.TokensPerSec)
		}
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func (r *REPL) cmdModels(ctx context.Context) {
	r.store.FetchAvailableModels(ctx)
	if msg := r.store.ModelsError(); msg != "" {
		fmt.Fprintf(r.out, "Could not list models: %s\n", msg)
		return
	}
	models := r.store.Models()
	if len(models) == 0 {
		fmt.Fprintln(r.out, "No models installed. Pull one with: ollama pull llama3.2")
		return
	}
	for _, m := range models {
		fmt.Fprintf(r.out, "  %s %s\n", util.PadRight(m.Name, 30), m.FormatSize())
	}
}

func (r *REPL) cmdNew(args []string) {
	model := r.cfg.DefaultModel
	if len(args) > 0 {
		model = args[0]
	}
	if _, err := r.store.CreateChat("", model); err != nil {
		fmt.Fprintf(r.out, "%v\n", err)
		return
	}
	fmt.Fprintf(r.out, "Started a new chat with %s.\n", model)
}

func (r *REPL) cmdChats() {
	metas := r.store.Sessions()
	if len(metas) == 0 {
		fmt.Fprintln(r.out, "No chats yet. Type a message or /new to start one.")
		return
	}
	activeID := r.store.ActiveChatID()
	for i, meta := range metas {
		marker := " "
		if meta.ID == activeID {
			marker = "*"
		}
		title := meta.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(r.out, "%s %2d. %s %s, %d messages\n",
			marker, i+1, util.PadRight(util.Truncate(title, 40), 40),
			meta.Model, meta.MessageCount)
	}
}

// resolveChat maps a 1-based /chats position to a session ID.
func (r *REPL) resolveChat(arg string) (string, bool) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return "", false
	}
	metas := r.store.Sessions()
	if n < 1 || n > len(metas) {
		return "", false
	}
	return metas[n-1].ID, true
}

func (r *REPL) cmdSwitch(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(r.out, "Usage: /switch <n>")
		return
	}
	id, ok := r.resolveChat(args[0])
	if !ok {
		fmt.Fprintf(r.out, "No chat %s. See /chats.\n", args[0])
		return
	}
	r.store.SetActiveChat(id)
	r.printActive()
}

func (r *REPL) cmdDelete(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(r.out, "Usage: /delete <n>")
		return
	}
	id, ok := r.resolveChat(args[0])
	if !ok {
		fmt.Fprintf(r.out, "No chat %s. See /chats.\n", args[0])
		return
	}
	if err := r.store.DeleteChat(id); err != nil {
		fmt.Fprintf(r.out, "%v\n", err)
		return
	}
	fmt.Fprintln(r.out, "Chat deleted.")
}

func (r *REPL) cmdRename(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(r.out, "Usage: /rename <title>")
		return
	}
	active, ok := r.store.ActiveChat()
	if !ok {
		fmt.Fprintln(r.out, "No active chat.")
		return
	}
	title := strings.Join(args, " ")
	if err := r.store.RenameChat(active.ID, title); err != nil {
		fmt.Fprintf(r.out, "%v\n", err)
		return
	}
	fmt.Fprintf(r.out, "Renamed to %q.\n", title)
}

func (r *REPL) cmdStatus(ctx context.Context) {
	fmt.Fprintf(r.out, "Server:  %s\n", r.cfg.Server.URL)

	metas := r.store.Sessions()
	fmt.Fprintf(r.out, "Chats:   %d\n", len(metas))

	if active, ok := r.store.ActiveChat(); ok {
		fmt.Fprintf(r.out, "Active:  %s (%s, %d messages, created %s)\n",
			activeTitle(active), active.Model, len(active.Messages),
			active.CreatedAt.Format(time.DateTime))
	} else {
		fmt.Fprintln(r.out, "Active:  none")
	}

	if rate := r.lastRate.Load(); rate > 0 {
		fmt.Fprintf(r.out, "Speed:   %d tok/s\n", rate)
	}
}

func (r *REPL) printActive() {
	if active, ok := r.store.ActiveChat(); ok {
		fmt.Fprintf(r.out, "Active chat: %s (%s)\n", activeTitle(active), active.Model)
	}
}

func activeTitle(sess *chat.ChatSession) string {
	if sess.Title == "" {
		return "(untitled)"
	}
	return sess.Title
}
