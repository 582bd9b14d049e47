package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"comix-sync/internal/browser"
	"comix-sync/internal/config"
	"comix-sync/internal/db"
	"comix-sync/internal/logger"
	"comix-sync/internal/notify"
	"comix-sync/internal/scraper"
	"comix-sync/internal/session"
	"comix-sync/internal/storage"
	"comix-sync/internal/updater"

	"github.com/spf13/pflag"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

const usage = `A manga aggregation service that scrapes, caches and re-hosts chapters.

Usage:
  comix-sync [command] [flags]

Commands:
  start          Start comix-sync
  version        Print version info
  help           Show this help message

Flags:
  -c, --config <path>  Path to configuration file (default is in the default user config directory)

Provide a configuration file using one of the following methods:
1. Use the --config <path> or -c <path> flag.
2. Place a config.toml file in the default user configuration directory (e.g., ~/.config/comix-sync/).
3. Place a config.toml file a folder inside your home directory (e.g., ~/.comix-sync/).
4. Place a config.toml file in the directory of the binary.
` + "\n"

func init() {
	pflag.Usage = func() {
		fmt.Print(usage)
	}
}

func main() {
	var configPath string

	pflag.StringVarP(&configPath, "config", "c", "", "Specifies the path for the config file.")
	pflag.Parse()

	switch cmd := pflag.Arg(0); cmd {
	case "version":
		fmt.Printf("Version: %v\nCommit: %v\nBuild date: %v\n", version, commit, date)

	case "start":
		commandStart(configPath)

	default:
		pflag.Usage()
		if cmd != "help" {
			os.Exit(0)
		}
	}
}

func commandStart(configPath string) {
	// read config
	cfg := config.New(configPath, version)

	// init new logger
	log := logger.New(cfg.Config)

	if err := cfg.UpdateConfig(); err != nil {
		log.Error().Err(err).Msgf("error updating config")
	}

	// init dynamic config
	cfg.DynamicReload(log)

	// init new database
	database := db.NewHandler(log, cfg)
	if err := database.Open(); err != nil {
		log.Fatal().Err(err).Msg("error opening database connection")
	}

	log.Info().Msgf("Starting comix-sync")
	log.Info().Msgf("Version: %s", version)
	log.Info().Msgf("Commit: %s", commit)
	log.Info().Msgf("Build date: %s", date)
	log.Info().Msgf("Log-level: %s", cfg.Config.LogLevel)
	log.Info().Msgf("Target site: %s", cfg.Config.SiteURL)

	// warm the in-memory chapter cache
	if err := database.WarmChapterCache(); err != nil {
		log.Fatal().Err(err).Msg("error loading cached chapters")
	}

	// shared headless browser, launched lazily on first use
	mgr := browser.NewManager(log, cfg)

	// session cookie provider with single-flight browser refresh
	refresher := session.NewBrowserRefresher(log, cfg, mgr)
	cookies := session.NewProvider(log, database, refresher)

	// durable image hosting, passthrough when unconfigured
	store := storage.New(log, cfg)

	direct := scraper.NewDirectStrategy(log, cfg)
	render := scraper.NewRenderStrategy(log, cfg, mgr)
	strategies := []scraper.Strategy{direct, render}

	chapters := scraper.NewChapterScraper(log, cfg, database, cookies, store, strategies)
	titles := scraper.NewTitleScraper(log, cfg, cookies, direct, render, mgr)
	homepage := scraper.NewHomepageScraper(log, cfg, cookies, render)

	// seed the title library from the landing page
	go func() {
		result := homepage.GetHomepage(context.Background())
		if !result.Success {
			log.Error().Msgf("error scraping homepage: %s", result.Error)
			return
		}
		if err := database.UpsertLibrary(result.Data); err != nil {
			log.Error().Err(err).Msg("error upserting homepage titles")
		}
	}()

	// optional discord notifications
	var bot *notify.Discord
	var notifier updater.Notifier
	if cfg.Config.DiscordToken != "" {
		bot = notify.New(log, cfg)
		if err := bot.Open(); err != nil {
			log.Fatal().Err(err).Msg("error opening discord session")
		}
		notifier = bot
	}

	auto := updater.New(log, cfg, database, titles, chapters, notifier)
	auto.Start()

	// set up a channel to catch signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	sig := <-sigCh
	log.Info().Msgf("received signal: %s, shutting down.", sig)

	auto.Stop()

	if bot != nil {
		if err := bot.Close(); err != nil {
			log.Error().Err(err).Msg("error closing discord connection")
		}
	}

	mgr.Close()

	// close database connection
	if err := database.Close(); err != nil {
		log.Error().Err(err).Msg("error closing database connection")
		os.Exit(1)
	}

	os.Exit(0)
}
