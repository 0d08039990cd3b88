package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"CommentThreads/internal/config"
	"CommentThreads/internal/events"
	"CommentThreads/internal/gateway"
	"CommentThreads/internal/http-server/middleware/auth"
	"CommentThreads/internal/live"
	"CommentThreads/internal/models"
	"CommentThreads/internal/storage"
	"CommentThreads/internal/thread"

	"github.com/docopt/docopt-go"
)

const ThreadCtlVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", 0)
}

func main() {
	usage := `Comment thread control.

Reads the service config from --config or CONFIG_PATH and talks to the
configured comment feed directly.

Usage:
    threadctl show [--config=<path>] <post_id>
    threadctl watch [--config=<path>] <post_id>
    threadctl reply [--config=<path>] <post_id> <parent_id> <text>
        --author_id=<author_id>
        [--author=<author>]
    threadctl delete [--config=<path>] <post_id> <comment_id> [--yes]
    threadctl token [--config=<path>] <author_id> [--author=<author>]

Options:
    -h --help                  Show this screen.
    --version                  Show version.
    --config=<path>            Service config file.
    --author_id=<author_id>    Acting user id.
    --author=<author>          Acting user display name.
    --yes                      Delete without asking.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], ThreadCtlVersion)
	if err != nil {
		panic(err)
	}

	cfg := loadConfig(opts)

	if show_, _ := opts.Bool("show"); show_ {
		err = show(cfg, opts)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		err = watch(cfg, opts)
	} else if reply_, _ := opts.Bool("reply"); reply_ {
		err = reply(cfg, opts)
	} else if delete_, _ := opts.Bool("delete"); delete_ {
		err = deleteComment(cfg, opts)
	} else if token_, _ := opts.Bool("token"); token_ {
		err = token(cfg, opts)
	}
	if err != nil {
		Err.Fatalf("%s", err)
	}
}

func loadConfig(opts docopt.Opts) *config.Config {
	path, _ := opts.String("--config")
	if path == "" {
		return config.MustLoad()
	}
	cfg, err := config.Load(path)
	if err != nil {
		Err.Fatalf("%s", err)
	}
	return cfg
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type snapshotter interface {
	Snapshot(ctx context.Context, postID string) (models.Snapshot, error)
}

func show(cfg *config.Config, opts docopt.Opts) error {
	postID, _ := opts.String("<post_id>")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	f, err := storage.Open(ctx, cfg.Storage, newLogger())
	if err != nil {
		return err
	}
	defer f.Close()

	return printSnapshot(ctx, f, postID, Out)
}

// printSnapshot reads the post once and prints it in display order.
func printSnapshot(ctx context.Context, s snapshotter, postID string, out *log.Logger) error {
	snap, err := s.Snapshot(ctx, postID)
	if err != nil {
		return err
	}

	t, err := thread.Build(postID, snap)
	printThread(out, t, err)
	for depth, c := range thread.Walk(thread.BuildIndex(snap)) {
		out.Print(formatComment(depth, c))
	}
	return nil
}

// watch prints the whole thread again after every change until interrupted.
func watch(cfg *config.Config, opts docopt.Opts) error {
	postID, _ := opts.String("<post_id>")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f, err := storage.Open(ctx, cfg.Storage, newLogger())
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := live.Watch(ctx, f, postID, newLogger(), func(t models.Thread, err error) {
		Out.Printf("--- %s", t.BuiltAt.Format(time.RFC3339))
		printThread(Out, t, err)
		printNodes(Out, t.Comments)
	})
	if err != nil {
		return err
	}
	defer w.Close()

	<-ctx.Done()
	return nil
}

func reply(cfg *config.Config, opts docopt.Opts) error {
	postID, _ := opts.String("<post_id>")
	parentID, _ := opts.String("<parent_id>")
	text, _ := opts.String("<text>")
	who := identity(opts)

	if err := gateway.ValidateReply(text, parentID); err != nil {
		return err
	}

	gw, done, err := openGateway(cfg, who)
	if err != nil {
		return err
	}
	defer done()

	gw.Reply(context.Background(), postID, text, parentID)
	gw.Wait()
	return nil
}

func deleteComment(cfg *config.Config, opts docopt.Opts) error {
	postID, _ := opts.String("<post_id>")
	commentID, _ := opts.String("<comment_id>")

	if yes, _ := opts.Bool("--yes"); !yes && !confirm(fmt.Sprintf("Delete comment %s? [y/N] ", commentID)) {
		Out.Print("cancelled")
		return nil
	}

	gw, done, err := openGateway(cfg, models.Identity{})
	if err != nil {
		return err
	}
	defer done()

	gw.Delete(context.Background(), postID, commentID)
	gw.Wait()
	return nil
}

// token signs a bearer token for the service with the configured secret.
func token(cfg *config.Config, opts docopt.Opts) error {
	who := identity(opts)

	signed, err := auth.NewVerifier(cfg.Auth.JWTSecret).Sign(who)
	if err != nil {
		return err
	}
	Out.Print(signed)
	return nil
}

func identity(opts docopt.Opts) models.Identity {
	id, _ := opts.String("--author_id")
	if id == "" {
		id, _ = opts.String("<author_id>")
	}
	name, _ := opts.String("--author")
	return models.Identity{ID: id, Name: name}
}

type stderrNotifier struct{}

func (stderrNotifier) Notify(ctx context.Context, n models.Notice) {
	Err.Print(n.Message)
}

func openGateway(cfg *config.Config, who models.Identity) (*gateway.Gateway, func(), error) {
	log := newLogger()
	f, err := storage.Open(context.Background(), cfg.Storage, log)
	if err != nil {
		return nil, nil, err
	}

	gwCfg := gateway.Config{
		WriteTimeout:  cfg.Gateway.WriteTimeout,
		DefaultAuthor: cfg.Gateway.DefaultAuthor,
		Notifier:      stderrNotifier{},
	}
	publisher, err := events.Open(cfg.Events)
	if err != nil {
		Err.Printf("events disabled: %s", err)
	} else if publisher != nil {
		gwCfg.Publisher = publisher
	}

	gw := gateway.New(f, gateway.IdentityFunc(func(ctx context.Context) (models.Identity, bool) {
		return who, who.ID != ""
	}), log, gwCfg)

	return gw, func() {
		if publisher != nil {
			_ = publisher.Close()
		}
		_ = f.Close()
	}, nil
}

func confirm(prompt string) bool {
	fmt.Fprint(os.Stdout, prompt)
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func printThread(out *log.Logger, t models.Thread, err error) {
	out.Printf("post %s: %d comments, %d shown", t.PostID, t.Total, t.Visible)
	if err != nil {
		Err.Printf("warning: %s", err)
	}
}

func printNodes(out *log.Logger, nodes []models.Node) {
	for _, n := range nodes {
		out.Print(formatComment(n.Depth, n.Comment))
		printNodes(out, n.Replies)
	}
}

func formatComment(depth int, c models.Comment) string {
	return fmt.Sprintf("%s- [%s] %s (%s): %s",
		strings.Repeat("  ", depth), c.ID, c.Author, c.Timestamp.Local().Format("2006-01-02 15:04"), c.Text)
}
