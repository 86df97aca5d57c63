package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lox/showcase/internal/api"
	"github.com/lox/showcase/internal/assistant"
	"github.com/lox/showcase/internal/httputil"
	"github.com/lox/showcase/internal/power"
	"github.com/lox/showcase/internal/resolver"
	"github.com/lox/showcase/internal/sources"
	"github.com/lox/showcase/internal/store"
)

type ServeCmd struct {
	Port            string        `env:"PORT" default:"8080" help:"HTTP server port."`
	DB              string        `name:"db" env:"SHOWCASE_DB" default:":memory:" help:"SQLite DSN for the lookup log."`
	NoLookupLog     bool          `env:"SHOWCASE_NO_LOOKUP_LOG" help:"Disable the upstream lookup log."`
	LookupRetention time.Duration `env:"SHOWCASE_LOOKUP_RETENTION" default:"24h" help:"How long lookup log rows are kept."`
	TrustProxy      bool          `env:"SHOWCASE_TRUST_PROXY" help:"Take the caller address from X-Forwarded-For / X-Real-IP."`
	MaxSessions     int           `env:"SHOWCASE_MAX_SESSIONS" default:"1000" help:"Chat sessions kept before the oldest is evicted."`
}

func (c *ServeCmd) Run(g *Globals) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fetcher := httputil.NewFetcher(httputil.NewClient())

	var st *store.Store
	if !c.NoLookupLog {
		db, err := openDB(c.DB)
		if err != nil {
			return err
		}
		defer db.Close()

		st = store.New(db)
		if err := st.Migrate(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Println("database migrated")
		fetcher.SetRecorder(st)
		go cleanupLoop(ctx, st, c.LookupRetention)
	}

	completer, persona, err := g.buildAssistant()
	if err != nil {
		return err
	}

	server := api.NewServer(api.Config{
		Port:     c.Port,
		Store:    st,
		Sessions: assistant.NewRegistry(completer, persona, c.MaxSessions),
		Sources: api.Sources{
			Geocoder:  sources.NewBigDataCloud(fetcher, ""),
			PublicIP:  sources.NewIpify(fetcher, ""),
			Primary:   sources.NewIPAPI(fetcher, ""),
			Secondary: sources.NewIPWho(fetcher, ""),
			Weather:   sources.NewOpenMeteo(fetcher, ""),
		},
		TrustProxy:  c.TrustProxy,
		BatteryRoot: g.BatteryRoot,
	})

	log.Printf("starting server on :%s", c.Port)
	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Each connection to :memory: is its own database.
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.Exec("PRAGMA journal_mode=WAL")
	}
	db.Exec("PRAGMA busy_timeout=5000")
	return db, nil
}

func cleanupLoop(ctx context.Context, st *store.Store, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.CleanupOldLookups(retention)
			if err != nil {
				log.Printf("lookup cleanup: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("lookup cleanup: removed %d rows", n)
			}
		}
	}
}

type ResolveCmd struct {
	Lat      string `help:"Latitude reported by the device sensor."`
	Lon      string `help:"Longitude reported by the device sensor."`
	Accuracy string `help:"Accuracy of the reported fix in metres."`
	Progress bool   `help:"Print every intermediate state, not just the final one."`
}

func (c *ResolveCmd) Run(g *Globals) error {
	fetcher := httputil.NewFetcher(httputil.NewClient())

	var sensor sources.Sensor = sources.NoSensor{}
	if c.Lat != "" || c.Lon != "" {
		rs := sources.NewReportedSensor(c.Lat, c.Lon, c.Accuracy)
		if _, err := rs.Position(context.Background(), sources.DefaultSensorOptions); err != nil {
			return fmt.Errorf("reported fix: %w", err)
		}
		sensor = rs
	}

	r := resolver.New(resolver.Config{
		Sensor:    sensor,
		Geocoder:  sources.NewBigDataCloud(fetcher, ""),
		PublicIP:  sources.NewIpify(fetcher, ""),
		Primary:   sources.NewIPAPI(fetcher, ""),
		Secondary: sources.NewIPWho(fetcher, ""),
		Weather:   sources.NewOpenMeteo(fetcher, ""),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if c.Progress {
		r.ResolveWithUpdates(ctx, func(s resolver.State) {
			if err := enc.Encode(s); err != nil {
				log.Printf("encode state: %v", err)
			}
		})
		return nil
	}
	return enc.Encode(resolver.State{Result: r.Resolve(ctx)})
}

type ChatCmd struct{}

func (c *ChatCmd) Run(g *Globals) error {
	completer, persona, err := g.buildAssistant()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return chatLoop(ctx, assistant.NewSession(completer, persona), os.Stdin, os.Stdout)
}

// chatLoop prints the seeded greeting, then sends each input line verbatim and
// prints the reply. Blank lines are left to the session to reject.
func chatLoop(ctx context.Context, sess *assistant.Session, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, sess.Messages()[0].Text)

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		if !sess.Send(ctx, sc.Text()) {
			continue
		}
		msgs := sess.Messages()
		fmt.Fprintln(out, msgs[len(msgs)-1].Text)
		if ctx.Err() != nil {
			return nil
		}
	}
}

type BatteryCmd struct{}

func (c *BatteryCmd) Run(g *Globals) error {
	b, ok := power.Read(g.BatteryRoot)
	if !ok {
		fmt.Println("battery: unavailable")
		return nil
	}
	state := "discharging"
	if b.Charging {
		state = "charging"
	}
	fmt.Printf("battery: %d%% (%s)\n", b.Level, state)
	return nil
}

// buildAssistant builds the completer and persona shared by serve and chat. A
// missing API key still yields a completer; exchanges degrade to the error
// reply.
func (g *Globals) buildAssistant() (assistant.Completer, string, error) {
	persona, err := assistant.LoadPersona(g.PersonaFile)
	if err != nil {
		return nil, "", err
	}
	if g.OpenAIAPIKey == "" {
		log.Println("warning: OPENAI_API_KEY not set, assistant replies will fail")
	}
	return assistant.NewOpenAI(g.OpenAIAPIKey, g.Model), persona, nil
}
