package main

import (
	"errors"
	"io/fs"
	"log"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/lox/showcase/internal/assistant"

	_ "modernc.org/sqlite"
)

type Globals struct {
	OpenAIAPIKey string `name:"openai-api-key" env:"OPENAI_API_KEY" help:"API key for the completion endpoint."`
	Model        string `env:"OPENAI_MODEL" default:"${model}" help:"Completion model identifier."`
	PersonaFile  string `env:"SHOWCASE_PERSONA_FILE" help:"File replacing the built-in assistant persona."`
	BatteryRoot  string `env:"SHOWCASE_BATTERY_ROOT" default:"/sys/class/power_supply" help:"sysfs power supply directory."`
}

type CLI struct {
	Globals

	Serve   ServeCmd   `cmd:"" default:"withargs" help:"Serve the environment and assistant APIs."`
	Resolve ResolveCmd `cmd:"" help:"Resolve location, locality and weather once and print it."`
	Chat    ChatCmd    `cmd:"" help:"Chat with the assistant on the terminal."`
	Battery BatteryCmd `cmd:"" help:"Print the device battery state."`
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("warning: could not load .env: %v", err)
	}

	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		log.Fatalf("cli: %v", err)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}

func newParser(cli *CLI) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("showcase"),
		kong.Description("Portfolio showcase backend: environment panel and AI assistant."),
		kong.UsageOnError(),
		kong.Vars{"model": assistant.DefaultModel},
	)
}
