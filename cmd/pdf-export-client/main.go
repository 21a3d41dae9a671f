// Command pdf-export-client sends HTML to a pdf-export service and saves the PDF.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"pdf-export/pkg/client"
)

type options struct {
	url     string
	apiKey  string
	input   string
	html    string
	output  string
	get     bool
	status  bool
	timeout time.Duration
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("pdf-export-client", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{}
	fs.StringVarP(&o.url, "url", "u", "", "endpoint URL (default $"+client.EnvBaseURL+")")
	fs.StringVarP(&o.apiKey, "api-key", "k", "", "value for the X-API-Key header")
	fs.StringVarP(&o.input, "input", "i", "", "HTML file to convert, '-' for stdin")
	fs.StringVar(&o.html, "html", "", "inline HTML to convert")
	fs.StringVarP(&o.output, "output", "o", "generated.pdf", "where to write the PDF")
	fs.BoolVar(&o.get, "get", false, "send the HTML as a query parameter instead of a JSON body")
	fs.BoolVar(&o.status, "status", false, "only query the endpoint status")
	fs.DurationVarP(&o.timeout, "timeout", "t", 90*time.Second, "request timeout")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.url == "" {
		o.url = os.Getenv(client.EnvBaseURL)
	}
	if o.url == "" {
		return nil, fmt.Errorf("no endpoint: pass --url or set %s", client.EnvBaseURL)
	}
	if !o.status && o.input == "" && o.html == "" {
		return nil, errors.New("nothing to convert: pass --input or --html")
	}
	if o.input != "" && o.html != "" {
		return nil, errors.New("--input and --html are mutually exclusive")
	}
	return o, nil
}

func readHTML(o *options, stdin io.Reader) (string, error) {
	switch o.input {
	case "":
		return o.html, nil
	case "-":
		b, err := io.ReadAll(stdin)
		return string(b), err
	default:
		b, err := os.ReadFile(o.input)
		return string(b), err
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, "error:", err)
		return 2
	}

	c := client.New(o.url)
	c.APIKey = o.apiKey
	c.HTTPClient.Timeout = o.timeout

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	if o.status {
		st, err := c.Status(ctx)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
		fmt.Fprintf(stdout, "%s: %s (%s)\n", st.Status, st.Message, st.Timestamp)
		return 0
	}

	html, err := readHTML(o, stdin)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	download := c.Download
	if o.get {
		download = c.DownloadGET
	}
	n, err := download(ctx, html, o.output)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote %s (%d bytes)\n", o.output, n)
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
