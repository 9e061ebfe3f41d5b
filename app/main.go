package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/umputun/apptrack/app/backup"
	"github.com/umputun/apptrack/app/fetcher"
	"github.com/umputun/apptrack/app/persistence"
	"github.com/umputun/apptrack/app/prefs"
	"github.com/umputun/apptrack/app/repo"
	"github.com/umputun/apptrack/app/web"
)

var opts struct {
	DBFile    string `short:"f" long:"db" env:"APPTRACK_DB" default:"apptrack.db" description:"sqlite database file"`
	PrefsFile string `long:"prefs" env:"APPTRACK_PREFS" default:"apptrack-prefs.db" description:"column prefs file"`
	Listen    string `short:"l" long:"listen" env:"APPTRACK_LISTEN" default:"localhost:8080" description:"listen address"`

	Fetch struct {
		Timeout time.Duration `long:"timeout" env:"TIMEOUT" default:"30s" description:"page fetch timeout"`
		RPS     float64       `long:"rps" env:"RPS" default:"1" description:"import rate limit, requests per second"`
	} `group:"fetch" namespace:"fetch" env-namespace:"APPTRACK_FETCH"`

	Backup struct {
		File     string `long:"file" env:"FILE" description:"backup file, disables scheduled backups if empty"`
		Format   string `long:"format" env:"FORMAT" default:"json" choice:"json" choice:"yaml" description:"backup format"`
		Schedule string `long:"schedule" env:"SCHEDULE" default:"@hourly" description:"backup cron schedule"`
		Restore  string `long:"restore" env:"RESTORE" description:"restore from the given dump file and exit"`
		Schema   bool   `long:"schema" description:"print the dump JSON schema and exit"`
	} `group:"backup" namespace:"backup" env-namespace:"APPTRACK_BACKUP"`

	Repeater struct {
		Attempts int           `long:"attempts" env:"ATTEMPTS" default:"3" description:"how many times to repeat failed persistence"`
		Duration time.Duration `long:"duration" env:"DURATION" default:"1s" description:"initial duration"`
		Factor   float64       `long:"factor" env:"FACTOR" default:"3" description:"backoff factor"`
		Jitter   bool          `long:"jitter" env:"JITTER" description:"jitter"`
	} `group:"repeater" namespace:"repeater" env-namespace:"APPTRACK_REPEATER"`

	Log struct {
		Enabled         bool   `long:"enabled" env:"ENABLED" description:"enable logging to file"`
		Filename        string `long:"filename" env:"FILENAME" default:"apptrack.log" description:"log file name"`
		MaxSize         int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"max log size in megabytes"`
		MaxAge          int    `long:"max-age" env:"MAX_AGE" default:"0" description:"max days to retain logs"`
		MaxBackups      int    `long:"max-backups" env:"MAX_BACKUPS" default:"7" description:"max number of rotated logs"`
		EnabledCompress bool   `long:"enabled-compress" env:"ENABLED_COMPRESS" description:"compress rotated logs"`
	} `group:"log" namespace:"log" env-namespace:"APPTRACK_LOG"`

	Dbg bool `long:"dbg" env:"APPTRACK_DEBUG" description:"debug mode"`
}

var revision = "unknown"

func main() {
	fmt.Printf("apptrack %s\n", revision)

	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(2)
	}

	logOut := setupLogs()
	if opts.Dbg {
		log.Setup(log.Debug, log.Msec, log.CallerFunc, log.CallerPkg, log.CallerFile, log.Out(logOut))
	} else {
		log.Setup(log.Msec, log.Out(logOut))
	}

	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	if opts.Backup.Schema {
		data, err := backup.Schema()
		if err != nil {
			log.Printf("[ERROR] failed to build schema, %v", err)
		}
		fmt.Println(string(data))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	signals(cancel) // handle SIGQUIT and SIGTERM

	if err := run(ctx); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	store, err := persistence.NewSQLiteStore(opts.DBFile)
	if err != nil {
		return fmt.Errorf("failed to open store %s: %w", opts.DBFile, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("[WARN] failed to close store: %v", err)
		}
	}()

	rptr := repeater.New(&strategy.Backoff{Repeats: opts.Repeater.Attempts, Duration: opts.Repeater.Duration,
		Factor: opts.Repeater.Factor, Jitter: opts.Repeater.Jitter})

	applications, err := repo.New(store, rptr)
	if err != nil {
		return fmt.Errorf("failed to create repository: %w", err)
	}
	defer applications.Wait() // let background persistence drain on shutdown

	backupFormat, err := backup.ParseFormat(opts.Backup.Format)
	if err != nil {
		return err
	}

	if opts.Backup.Restore != "" { // one-shot restore mode
		return backup.New(applications, opts.Backup.Restore, backupFormat).Restore(opts.Backup.Restore)
	}

	prefStore, err := prefs.NewStore(opts.PrefsFile)
	if err != nil {
		return fmt.Errorf("failed to open prefs %s: %w", opts.PrefsFile, err)
	}
	defer func() {
		if err := prefStore.Close(); err != nil {
			log.Printf("[WARN] failed to close prefs: %v", err)
		}
	}()

	if opts.Backup.File != "" {
		bkp := backup.New(applications, opts.Backup.File, backupFormat)
		go func() {
			if err := bkp.Run(ctx, opts.Backup.Schedule); err != nil {
				log.Printf("[WARN] backup scheduler terminated: %v", err)
			}
		}()
	}

	srv, err := web.New(web.Config{
		Repo:      applications,
		Fetcher:   fetcher.New(opts.Fetch.Timeout),
		Prefs:     prefStore,
		Version:   revision,
		ImportRPS: opts.Fetch.RPS,
	})
	if err != nil {
		return fmt.Errorf("failed to create web server: %w", err)
	}
	return srv.Run(ctx, listenAddr(opts.Listen))
}

// setupLogs returns the writer log output goes to, a rotating file when file
// logging is enabled and stdout otherwise.
func setupLogs() io.Writer {
	if !opts.Log.Enabled {
		return os.Stdout
	}
	return &lumberjack.Logger{
		Filename:   opts.Log.Filename,
		MaxSize:    opts.Log.MaxSize,
		MaxAge:     opts.Log.MaxAge,
		MaxBackups: opts.Log.MaxBackups,
		Compress:   opts.Log.EnabledCompress,
	}
}

// listenAddr normalizes a listen address, a bare port gets a localhost host
// part so the dashboard stays local by default.
func listenAddr(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "localhost:8080"
	}
	if strings.HasPrefix(v, ":") {
		return "localhost" + v
	}
	return v
}

func signals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for sig := range sigChan {
			if sig == syscall.SIGQUIT { // catch SIGQUIT and print stack traces
				length := runtime.Stack(stacktrace, true)
				fmt.Println(string(stacktrace[:length]))
				continue
			}
			cancel() // terminate on SIGTERM
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT, syscall.SIGTERM)
}
