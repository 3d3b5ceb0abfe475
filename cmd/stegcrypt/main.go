// stegcrypt — Hide encrypted text in the pixels of lossless images.
//
// Usage:
//
//	stegcrypt hide -i <image> [-o <file>] [-t <text>] [options]
//	stegcrypt reveal -i <image> [--strict]
//	stegcrypt capacity -i <image> [-t <text>]
//	stegcrypt keygen [--force]
//	stegcrypt cover -o <file> [options]
//	stegcrypt serve [--addr :8080]
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/xob0t/stegcrypt/clients/server"
	"github.com/xob0t/stegcrypt/internal/config"
	"github.com/xob0t/stegcrypt/pkg/generator"
	"github.com/xob0t/stegcrypt/pkg/imageio"
	"github.com/xob0t/stegcrypt/pkg/keystore"
	"github.com/xob0t/stegcrypt/pkg/stego"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "hide":
		err = runHide(args, os.Stdin, os.Stdout)
	case "reveal":
		err = runReveal(args, os.Stdout)
	case "capacity":
		err = runCapacity(args, os.Stdout)
	case "keygen":
		err = runKeygen(args, os.Stdout)
	case "cover":
		err = runCover(args, os.Stdout)
	case "serve":
		err = runServe(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}
	if err != nil {
		fatal(err)
	}
}

// ── Shared setup ──

// common holds the flags every subcommand accepts. Flags left unset fall
// back to the config file.
type common struct {
	configPath string
	keyFile    string
	logLevel   string

	cfg  config.Config
	log  *logrus.Logger
	keys *keystore.Manager
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", config.DefaultPath, "Path to YAML config")
	fs.StringVar(&c.keyFile, "key", "", "Key file path (default from config: secret.key)")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// load reads the config, applies flag overrides and opens the key store.
func (c *common) load() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.keyFile != "" {
		cfg.KeyFile = c.keyFile
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	c.cfg = cfg

	if c.log, err = newLogger(cfg.LogLevel); err != nil {
		return err
	}

	c.keys, err = keystore.NewManager(keystore.NewStore(cfg.KeyFile))
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}
	return nil
}

func newLogger(level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return log, nil
}

// isSet reports whether the named flag was given on the command line.
func isSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// ── hide ──

func runHide(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("hide", flag.ExitOnError)
	var (
		c        common
		input    string
		output   string
		text     string
		textFile string
		format   string
	)
	c.register(fs)
	fs.StringVar(&input, "i", "", "Cover image to hide text in")
	fs.StringVar(&output, "o", "", "Output image (default: <input>_hidden.<format>)")
	fs.StringVar(&text, "t", "", "Text to hide (default: read from stdin)")
	fs.StringVar(&textFile, "text-file", "", "Read the text to hide from a file")
	fs.StringVar(&format, "f", "", "Output format: png, bmp, tiff (default from config or -o extension)")
	fs.Usage = printUsage
	if err := fs.Parse(args); err != nil {
		return err
	}
	if input == "" {
		return errors.New("input image is required (-i)")
	}
	if err := c.load(); err != nil {
		return err
	}

	f, err := outputFormat(fs, format, output, c.cfg.Output.Format)
	if err != nil {
		return err
	}
	if output == "" {
		base := strings.TrimSuffix(input, filepath.Ext(input))
		output = base + "_hidden." + string(f)
	}

	switch {
	case isSet(fs, "t"):
	case textFile != "":
		data, err := os.ReadFile(textFile)
		if err != nil {
			return fmt.Errorf("read text: %w", err)
		}
		text = string(data)
	default:
		if text, err = readText(stdin); err != nil {
			return err
		}
	}

	img, err := imageio.Load(input)
	if err != nil {
		return err
	}
	log := c.log.WithFields(logrus.Fields{
		"input":    input,
		"width":    img.Width(),
		"height":   img.Height(),
		"channels": img.Channels(),
	})

	pixels := img.Pixels()
	codec := stego.NewCodec(c.keys)
	if err := codec.Hide(text, pixels); err != nil {
		var capErr *stego.CapacityError
		if errors.As(err, &capErr) {
			return fmt.Errorf("%s can hold at most %s of text, got %s",
				input, humanize.IBytes(uint64(stego.Capacity(pixels))), humanize.IBytes(uint64(len(text))))
		}
		return err
	}
	if err := img.Put(pixels); err != nil {
		return err
	}
	if err := writeImage(img, output, f); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"output": output,
		"bits":   stego.RequiredPixels(len(text)),
	}).Debug("container embedded")
	fmt.Fprintf(stdout, "Done: %s\n", output)
	return nil
}

// outputFormat picks the output format: -f wins, then the -o extension,
// then the config default.
func outputFormat(fs *flag.FlagSet, flagValue, output, configured string) (imageio.Format, error) {
	switch {
	case isSet(fs, "f"):
		return imageio.ParseFormat(flagValue)
	case filepath.Ext(output) != "":
		return imageio.FormatForPath(output)
	default:
		return imageio.ParseFormat(configured)
	}
}

func writeImage(img *imageio.Image, path string, f imageio.Format) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := img.Encode(out, f); err != nil {
		out.Close()
		os.Remove(path)
		return err
	}
	return out.Close()
}

// readText reads the text to hide from stdin. On a terminal the user is
// prompted and input is not echoed; otherwise all of stdin is read and one
// trailing newline is dropped.
func readText(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(os.Stderr, "Text to hide: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read text: %w", err)
		}
		return string(b), nil
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	s := strings.TrimSuffix(string(b), "\n")
	return strings.TrimSuffix(s, "\r"), nil
}

// ── reveal ──

// outcomeError carries a decode outcome that should exit non-zero.
type outcomeError struct{ res stego.Result }

func (e *outcomeError) Error() string { return e.res.String() }

func runReveal(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("reveal", flag.ExitOnError)
	var (
		c      common
		input  string
		strict bool
	)
	c.register(fs)
	fs.StringVar(&input, "i", "", "Image to reveal text from")
	fs.BoolVar(&strict, "strict", false, "Report a container cut short by the image as truncated")
	fs.Usage = printUsage
	if err := fs.Parse(args); err != nil {
		return err
	}
	if input == "" {
		return errors.New("input image is required (-i)")
	}
	if err := c.load(); err != nil {
		return err
	}
	if !isSet(fs, "strict") {
		strict = c.cfg.StrictLength
	}

	img, err := imageio.Load(input)
	if err != nil {
		return err
	}

	var opts []stego.DecodeOption
	if strict {
		opts = append(opts, stego.WithStrictLength())
	}
	res, err := stego.NewCodec(c.keys, opts...).Reveal(img.Pixels())
	if err != nil {
		return err
	}

	c.log.WithFields(logrus.Fields{
		"input":     input,
		"outcome":   res.Outcome,
		"declared":  res.DeclaredLength,
		"read":      res.ReadLength,
		"truncated": res.Truncated,
	}).Debug("container extracted")

	if !res.Outcome.OK() {
		return &outcomeError{res: res}
	}
	fmt.Fprintln(stdout, res.String())
	return nil
}

// ── capacity ──

func runCapacity(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("capacity", flag.ExitOnError)
	var (
		c     common
		input string
		text  string
	)
	c.register(fs)
	fs.StringVar(&input, "i", "", "Image to measure")
	fs.StringVar(&text, "t", "", "Check whether this text fits")
	fs.Usage = printUsage
	if err := fs.Parse(args); err != nil {
		return err
	}
	if input == "" {
		return errors.New("input image is required (-i)")
	}
	if err := c.load(); err != nil {
		return err
	}

	img, err := imageio.Load(input)
	if err != nil {
		return err
	}
	pixels := img.Pixels()
	capacity := stego.Capacity(pixels)
	fmt.Fprintf(stdout, "%s: %dx%d, %d channels, holds up to %s (%s bytes) of text\n",
		input, img.Width(), img.Height(), img.Channels(),
		humanize.IBytes(uint64(capacity)), humanize.Comma(int64(capacity)))

	if isSet(fs, "t") {
		need := stego.RequiredPixels(len(text))
		if need > pixels.Len() {
			return fmt.Errorf("text does not fit: needs %s pixels, image has %s",
				humanize.Comma(int64(need)), humanize.Comma(int64(pixels.Len())))
		}
		fmt.Fprintf(stdout, "text fits: uses %s of %s pixels\n",
			humanize.Comma(int64(need)), humanize.Comma(int64(pixels.Len())))
	}
	return nil
}

// ── keygen ──

func runKeygen(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	var (
		c     common
		force bool
	)
	c.register(fs)
	fs.BoolVar(&force, "force", false, "Replace an existing key (previously hidden text becomes unreadable)")
	fs.Usage = printUsage
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.load(); err != nil {
		return err
	}

	path := c.keys.Store().Path()
	if _, ok := c.keys.Key(); ok {
		if !force {
			return fmt.Errorf("key already exists at %s (use --force to replace it)", path)
		}
		if _, err := c.keys.Rotate(); err != nil {
			return err
		}
		c.log.WithField("path", path).Warn("key rotated; text hidden with the old key can no longer be revealed")
		fmt.Fprintf(stdout, "Replaced key: %s\n", path)
		return nil
	}

	if _, err := c.keys.EnsureKey(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Created key: %s\n", path)
	return nil
}

// ── cover ──

func runCover(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("cover", flag.ExitOnError)
	var (
		c       common
		output  string
		width   int
		height  int
		color   string
		noise   bool
		caption string
		font    string
		fitText string
	)
	c.register(fs)
	fs.StringVar(&output, "o", "", "Output file path (.png, .bmp or .tiff)")
	fs.IntVar(&width, "w", 0, "Width in pixels (default from config: 640)")
	fs.IntVar(&height, "h", 0, "Height in pixels (default from config: 480)")
	fs.StringVar(&color, "color", "", "Background color: hex or 'random'")
	fs.BoolVar(&noise, "noise", false, "Fill with random noise instead of a solid color")
	fs.StringVar(&caption, "caption", "", "Caption drawn onto the cover")
	fs.StringVar(&font, "font", "", "TTF font for the caption")
	fs.StringVar(&fitText, "fit", "", "Size the cover to the smallest square that holds this text")
	fs.Usage = printUsage
	if err := fs.Parse(args); err != nil {
		return err
	}
	if output == "" {
		return errors.New("output file is required (-o)")
	}
	if err := c.load(); err != nil {
		return err
	}

	cfg := generator.Config{
		Width:   c.cfg.Cover.Width,
		Height:  c.cfg.Cover.Height,
		Color:   c.cfg.Cover.Color,
		Noise:   c.cfg.Cover.Noise,
		Caption: caption,
		Font:    font,
	}
	if isSet(fs, "w") {
		cfg.Width = width
	}
	if isSet(fs, "h") {
		cfg.Height = height
	}
	if isSet(fs, "color") {
		cfg.Color = color
	}
	if isSet(fs, "noise") {
		cfg.Noise = noise
	}
	if isSet(fs, "fit") {
		cfg.Width, cfg.Height = generator.SizeFor(len(fitText), 0)
	}

	c.log.WithFields(logrus.Fields{
		"output": output,
		"width":  cfg.Width,
		"height": cfg.Height,
		"noise":  cfg.Noise,
	}).Debug("generating cover")
	if err := generator.Generate(output, cfg); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Done: %s (%dx%d)\n", output, cfg.Width, cfg.Height)
	return nil
}

// ── serve ──

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var (
		c      common
		addr   string
		strict bool
		open   bool
	)
	c.register(fs)
	fs.StringVar(&addr, "addr", "", "Listen address (default from config: :8080)")
	fs.BoolVar(&strict, "strict", false, "Report truncated containers")
	fs.BoolVar(&open, "open", false, "Open a browser once listening")
	fs.Usage = printUsage
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.load(); err != nil {
		return err
	}
	if !isSet(fs, "addr") {
		addr = c.cfg.Server.Addr
	}
	if !isSet(fs, "strict") {
		strict = c.cfg.StrictLength
	}

	format, err := imageio.ParseFormat(c.cfg.Output.Format)
	if err != nil {
		return err
	}
	opts := []server.Option{
		server.WithLogger(c.log),
		server.WithFormat(format),
		server.WithPreviewSize(c.cfg.Preview.Size),
		server.WithMaxUpload(int64(c.cfg.Server.MaxUploadMB) << 20),
	}
	if strict {
		opts = append(opts, server.WithDecodeOptions(stego.WithStrictLength()))
	}
	return server.ListenAndServe(addr, server.New(c.keys, opts...), open)
}

func fatal(err error) {
	var oe *outcomeError
	if errors.As(err, &oe) {
		fmt.Fprintln(os.Stderr, oe.Error())
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Print(`stegcrypt — Hide encrypted text in lossless images

USAGE:
    stegcrypt hide -i <image> [-o <file>] [-t <text>] [options]
    stegcrypt reveal -i <image> [--strict]
    stegcrypt capacity -i <image> [-t <text>]
    stegcrypt keygen [--force]
    stegcrypt cover -o <file> [options]
    stegcrypt serve [--addr :8080] [--open]

HIDE:
    -i <path>              Cover image (png, bmp, tiff, gif, jpeg, webp)
    -o <path>              Output image (default: <input>_hidden.<format>)
    -t <text>              Text to hide; read from stdin when omitted
    --text-file <path>     Read the text from a file
    -f <format>            png, bmp or tiff (lossy formats destroy hidden data)

REVEAL:
    -i <path>              Image to read
    --strict               Report containers cut short by the image

CAPACITY:
    -i <path>              Image to measure
    -t <text>              Check whether this text fits

KEYGEN:
    --force                Replace the existing key. Text hidden with the old
                           key can no longer be revealed.

COVER:
    -o <path>              Output file (.png, .bmp or .tiff)
    -w, -h <px>            Size in pixels (default: 640x480)
    --color <hex>          Background color or 'random'
    --noise                Random noise background
    --caption <text>       Caption drawn onto the cover
    --font <path>          TTF font for the caption
    --fit <text>           Smallest square cover that holds this text

COMMON:
    --config <path>        YAML config (default: stegcrypt.yaml)
    --key <path>           Key file (default: secret.key)
    --log-level <level>    debug, info, warn, error

EXAMPLES:
    stegcrypt cover -o cover.png --noise --fit "meet at noon"
    stegcrypt hide -i cover.png -o secret.png -t "meet at noon"
    echo "meet at noon" | stegcrypt hide -i cover.png
    stegcrypt reveal -i secret.png
    stegcrypt capacity -i photo.jpg
`)
}
