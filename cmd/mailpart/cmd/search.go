package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zostay/go-mailpart/message"
	"github.com/zostay/go-mailpart/search"
)

var (
	searchKey      string
	searchCharset  string
	includeHeaders bool
)

var searchCmd = &cobra.Command{
	Use:   "search message",
	Short: "Search a message body for a substring",
	Args:  cobra.ExactArgs(1),
	RunE:  RunSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchKey, "key", "k", "",
		"substring to search for")
	searchCmd.Flags().StringVarP(&searchCharset, "charset", "c", "",
		"charset of the search key (default UTF-8)")
	searchCmd.Flags().BoolVarP(&includeHeaders, "headers", "H", false,
		"also search the root header")
	_ = searchCmd.MarkFlagRequired("key")
	rootCmd.AddCommand(searchCmd)
}

// errNotFound makes a miss visible in the exit status without a stack
// of error text.
var errNotFound = errors.New("not found")

// RunSearch parses the message and runs the body search over it.
func RunSearch(cmd *cobra.Command, args []string) error {
	s, err := openMessage(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	root, err := message.Parse(s)
	if err != nil {
		log.WithError(err).Warn("message parsed with errors")
	}

	if err := s.Seek(0); err != nil {
		return err
	}
	found, err := search.Search(searchKey, searchCharset, s, root,
		includeHeaders, search.WithLogger(log))
	if err != nil {
		return err
	}

	if !found {
		return errNotFound
	}
	fmt.Println("found")
	return nil
}
