package cmd

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zostay/go-mailpart/cache"
	"github.com/zostay/go-mailpart/message"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the part-tree cache",
}

var cacheWarmCmd = &cobra.Command{
	Use:   "warm message",
	Short: "Parse a message and store its part tree in the cache",
	Args:  cobra.ExactArgs(1),
	RunE:  RunCacheWarm,
}

var cacheShowCmd = &cobra.Command{
	Use:   "show message",
	Short: "Print the cached part tree of a message",
	Args:  cobra.ExactArgs(1),
	RunE:  RunCacheShow,
}

var cacheDropCmd = &cobra.Command{
	Use:   "drop [message]",
	Short: "Drop one cached tree, or the whole cache",
	Args:  cobra.MaximumNArgs(1),
	RunE:  RunCacheDrop,
}

func init() {
	cacheCmd.AddCommand(cacheWarmCmd, cacheShowCmd, cacheDropCmd)
	rootCmd.AddCommand(cacheCmd)
}

// messageGUID derives a stable cache key from the message bytes.
func messageGUID(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(raw)
	return hex.EncodeToString(sum[:]), nil
}

func openStore() (*cache.Store, error) {
	return cache.Open(config.CachePath)
}

// RunCacheWarm parses the message and stores its serialized tree.
func RunCacheWarm(cmd *cobra.Command, args []string) error {
	guid, err := messageGUID(args[0])
	if err != nil {
		return err
	}

	s, err := openMessage(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	root, err := message.Parse(s)
	if err != nil {
		log.WithError(err).Warn("message parsed with errors")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	blob := message.Serialize(root)
	if err := store.Put(guid, blob); err != nil {
		return err
	}

	log.WithField("guid", guid).Debug("cached part tree")
	fmt.Printf("%s: %d parts, %d byte blob\n", guid, root.Count(), len(blob))
	return nil
}

// RunCacheShow loads the cached tree for the message and prints it.
func RunCacheShow(cmd *cobra.Command, args []string) error {
	guid, err := messageGUID(args[0])
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	blob, err := store.Get(guid)
	if err != nil {
		return err
	}

	root, err := message.Deserialize(blob)
	if err != nil {
		return err
	}

	printTree(root, 0)
	return nil
}

// RunCacheDrop removes one entry, or everything when no message is
// named.
func RunCacheDrop(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if len(args) == 0 {
		return store.InvalidateAll()
	}

	guid, err := messageGUID(args[0])
	if err != nil {
		return err
	}
	return store.Delete(guid)
}
