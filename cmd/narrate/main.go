package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/audio"
	"github.com/loqalabs/loqa-narrator/internal/config"
	"github.com/loqalabs/loqa-narrator/internal/narration"
	"github.com/loqalabs/loqa-narrator/internal/playback"
	"github.com/loqalabs/loqa-narrator/internal/stream"
	"github.com/loqalabs/loqa-narrator/internal/textnorm"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "normalize":
		err = runNormalize(os.Args[2:], os.Stdout)
	case "play":
		err = runPlay(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runNormalize(args []string, out io.Writer) error {
	var text, file, lang string
	var showLang bool
	fs := flag.NewFlagSet("normalize", flag.ExitOnError)
	fs.StringVar(&text, "text", "", "Text to normalize")
	fs.StringVar(&file, "file", "", "Read text from file ('-' for stdin)")
	fs.StringVar(&lang, "lang", "auto", "Language: auto, bn or en")
	fs.BoolVar(&showLang, "show-lang", false, "Print the resolved language before the text")
	fs.Parse(args)

	input, err := readInput(text, file)
	if err != nil {
		return err
	}
	language, err := textnorm.ParseLanguage(lang)
	if err != nil {
		return err
	}
	res := textnorm.Process(input, language)
	if showLang {
		fmt.Fprintf(out, "[%s] ", res.Language)
	}
	fmt.Fprintln(out, res.Text)
	return nil
}

// playFlags override the loaded configuration when set.
type playFlags struct {
	configPath string
	api        string
	token      string
	user       string
	chunkSize  int
	lang       string
	sink       string
	command    string
}

// load reads the config file (if any) with LOQA_* overrides applied, then
// layers the command-line flags on top.
func (f playFlags) load() (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	setString(&cfg.Narration.APIBaseURL, f.api)
	setString(&cfg.Narration.APIToken, f.token)
	setString(&cfg.Narration.DefaultUserID, f.user)
	setString(&cfg.Narration.Language, f.lang)
	setString(&cfg.Playback.Sink, f.sink)
	setString(&cfg.Playback.Command, f.command)
	if f.chunkSize > 0 {
		cfg.Narration.ChunkSize = f.chunkSize
	}
	return cfg, nil
}

func setString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func runPlay(args []string) error {
	var (
		flags           playFlags
		text, file      string
		timeout         time.Duration
		dryRun, verbose bool
	)
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	fs.StringVar(&text, "text", "", "Text to narrate")
	fs.StringVar(&file, "file", "", "Read text from file ('-' for stdin)")
	fs.StringVar(&flags.configPath, "config", "", "Path to configuration file (same format as narratord)")
	fs.StringVar(&flags.api, "api", "", "Speech API base URL")
	fs.StringVar(&flags.token, "token", "", "Bearer token for the speech API")
	fs.StringVar(&flags.user, "user", "", "User id sent with the request")
	fs.IntVar(&flags.chunkSize, "chunk-size", 0, "Requested chunk size")
	fs.StringVar(&flags.lang, "lang", "", "Language: auto, bn or en")
	fs.StringVar(&flags.sink, "sink", "", "Playback sink: mock, exec or oto")
	fs.StringVar(&flags.command, "command", "", "Player command for the exec sink, e.g. 'aplay -q'")
	fs.DurationVar(&timeout, "timeout", 5*time.Minute, "Give up after this long")
	fs.BoolVar(&dryRun, "dry-run", false, "Stream and schedule without waiting for playback; print the schedule")
	fs.BoolVar(&verbose, "v", false, "Verbose logging")
	fs.Parse(args)

	cfg, err := flags.load()
	if err != nil {
		return err
	}
	input, err := readInput(text, file)
	if err != nil {
		return err
	}
	language, err := textnorm.ParseLanguage(cfg.Narration.Language)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var clock playback.Clock
	var manual *playback.ManualClock
	if dryRun {
		manual = playback.NewManualClock()
		clock = manual
	} else {
		out, err := playback.NewSink(cfg.Playback, nil, "cli", logger)
		if err != nil {
			return err
		}
		clock = playback.NewSystemClock(ctx, out, logger)
	}

	streams := stream.NewClient(&http.Client{Transport: &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: time.Duration(cfg.Narration.ConnectTimeoutMS) * time.Millisecond,
	}}, logger)
	ctrl := narration.NewController(ctx, narration.Options{
		APIBaseURL:     cfg.Narration.APIBaseURL,
		Token:          cfg.Narration.APIToken,
		UserID:         cfg.Narration.DefaultUserID,
		ChunkSize:      cfg.Narration.ChunkSize,
		Language:       language,
		ReplayCooldown: time.Duration(cfg.Narration.ReplayCooldownMS) * time.Millisecond,
	}, streams, audio.NewDecoder(), clock, logger)
	defer ctrl.Close()

	finished := make(chan narration.Snapshot, 1)
	var lastStatus string
	ctrl.Subscribe(func(snap narration.Snapshot) {
		if snap.Status != lastStatus {
			fmt.Fprintln(os.Stderr, snap.Status)
			lastStatus = snap.Status
		}
		if done(snap, dryRun) {
			select {
			case finished <- snap:
			default:
			}
		}
	})

	ctrl.SetText(input)
	if err := ctrl.PlayPause(); err != nil {
		return err
	}

	select {
	case snap := <-finished:
		if snap.Error != "" {
			return fmt.Errorf("narration failed: %s", snap.Error)
		}
		if manual != nil {
			printSchedule(os.Stdout, manual.Starts())
		}
		fmt.Fprintf(os.Stderr, "%d chunks, %.2fs of audio, %d skipped\n", snap.BufferedChunks, snap.BufferedSeconds, snap.SkippedChunks)
		return nil
	case <-ctx.Done():
		ctrl.Cleanup()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("narration timed out after %s", timeout)
		}
		return nil
	}
}

// done reports when the CLI can exit: playback drained, or, in a dry run,
// the stream ended. A failure with nothing cached also ends the run.
func done(snap narration.Snapshot, dryRun bool) bool {
	if snap.Phase == narration.PhaseCompleted {
		return true
	}
	if snap.StreamStatus == narration.StreamError && !snap.HasAudioReady {
		return true
	}
	return dryRun && (snap.StreamStatus == narration.StreamCompleted || snap.StreamStatus == narration.StreamError)
}

func printSchedule(w io.Writer, starts []playback.StartRecord) {
	for i, s := range starts {
		fmt.Fprintf(w, "%3d  at %8.3fs  length %6.3fs\n", i, s.At, s.Buffer.Duration()-s.Offset)
	}
}

func readInput(text, file string) (string, error) {
	switch {
	case text != "":
		return text, nil
	case file == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read text file: %w", err)
		}
		return string(data), nil
	default:
		return "", errors.New("provide -text or -file")
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: narrate <command> [flags]

  normalize  print the speech-ready form of a text
  play       stream and play a text through the speech API
  version    print the version`)
}
