package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zostay/go-mailpart/message"
	"github.com/zostay/go-mailpart/stream"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect message",
	Short: "Parse a message and print its part tree and envelope",
	Args:  cobra.ExactArgs(1),
	RunE:  RunInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

// openMessage opens a message file as a seekable stream.
func openMessage(path string) (stream.Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return stream.NewReaderAt(f, st.Size()), nil
}

func flagNames(f message.Flags) string {
	var names []string
	if f&message.FlagMultipart != 0 {
		names = append(names, "multipart")
	}
	if f&message.FlagMultipartSigned != 0 {
		names = append(names, "signed")
	}
	if f&message.FlagMessageRFC822 != 0 {
		names = append(names, "message")
	}
	if f&message.FlagText != 0 {
		names = append(names, "text")
	}
	if f&message.FlagHasBoundary != 0 {
		names = append(names, "boundary")
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}

func printTree(p *message.Part, depth int) {
	fmt.Printf("%s@%-8d hdr %d/%d  body %d/%d  lines %d  [%s]\n",
		strings.Repeat("  ", depth),
		p.PhysicalPos,
		p.HeaderSize.Physical, p.HeaderSize.Virtual,
		p.BodySize.Physical, p.BodySize.Virtual,
		p.BodySize.Lines,
		flagNames(p.Flags))
	for _, c := range p.Children {
		printTree(c, depth+1)
	}
}

// RunInspect parses the message and prints what the parser saw.
func RunInspect(cmd *cobra.Command, args []string) error {
	s, err := openMessage(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	root, err := message.Parse(s)
	if err != nil {
		log.WithError(err).Warn("message parsed with errors")
	}

	env, err := message.ParseEnvelope(s, root)
	if err != nil {
		return err
	}

	if !env.Date.IsZero() {
		fmt.Printf("Date:    %s\n", env.Date)
	}
	if env.Subject != "" {
		fmt.Printf("Subject: %s\n", env.Subject)
	}
	if env.From != nil {
		fmt.Printf("From:    %s\n", env.From.String())
	}
	if env.To != nil {
		fmt.Printf("To:      %s\n", env.To.String())
	}
	fmt.Printf("Parts:   %d\n\n", root.Count())

	printTree(root, 0)
	return nil
}
