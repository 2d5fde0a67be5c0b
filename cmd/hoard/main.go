package main

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/madcowbg/hoard/pkg/aggregate"
	"github.com/madcowbg/hoard/pkg/config"
	"github.com/madcowbg/hoard/pkg/hoardpath"
	"github.com/madcowbg/hoard/pkg/index"
	"github.com/madcowbg/hoard/pkg/log"
	"github.com/madcowbg/hoard/pkg/object"
	"github.com/madcowbg/hoard/pkg/reconciler"
	"github.com/madcowbg/hoard/pkg/roots"
	"github.com/madcowbg/hoard/pkg/store"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "hoard",
	Short:   "Hoard - content-addressed file hoarding and reconciliation",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("hoard version %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "hoard.yaml", "Path to hoard configuration file")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(rootsCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(locateCmd)
	rootCmd.AddCommand(findCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func loadConfig(cmd *cobra.Command) (config.HoardConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(afero.NewOsFs(), path)
}

var gcCmd = &cobra.Command{
	Use:   "gc <db>",
	Short: "Reclaim objects unreachable from any root",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		var live []object.ID
		if err := s.ReadTxn(func(tx *store.ReadTx) error {
			var err error
			live, err = roots.AllLive(tx)
			return err
		}); err != nil {
			return err
		}

		stats, err := s.GC(live)
		if err != nil {
			return err
		}

		log.Logger.Info().
			Int("live_roots", stats.LiveRoots).
			Int("live_objects", stats.LiveObjects).
			Int("deleted", stats.Deleted).
			Msg("garbage collection complete")
		fmt.Println("DONE")
		return nil
	},
}

var rootsCmd = &cobra.Command{
	Use:   "roots <db>",
	Short: "List every named root and its current/staging/desired object IDs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		return s.ReadTxn(func(tx *store.ReadTx) error {
			names, err := roots.AllNames(tx)
			if err != nil {
				return err
			}
			for _, name := range names {
				data, err := roots.Get(tx, name)
				if err != nil {
					return err
				}
				log.WithRoot(string(name)).Info().
					Str("current", idOrNone(data.Current)).
					Str("staging", idOrNone(data.Staging)).
					Str("desired", idOrNone(data.Desired)).
					Msg("root")
			}
			fmt.Println("DONE")
			return nil
		})
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull <db> <cave-uuid>",
	Short: "Run the three-way merge pulling one cave's scan into the hoard",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, caveUUID := args[0], args[1]

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		s, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer s.Close()

		r := reconciler.NewReconciler(s, cfg)
		if err := r.Pull(caveUUID); err != nil {
			return err
		}

		ops, err := r.PendingOperations(caveUUID)
		if err != nil {
			return err
		}
		for _, op := range ops {
			log.WithCave(caveUUID).Info().
				Str("path", op.Path.String()).
				Str("op", op.Op.String()).
				Msg("pending file operation")
		}

		fmt.Println("DONE")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <db>",
	Short: "Report aggregate size of the hoard's desired content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		return s.ReadTxn(func(tx *store.ReadTx) error {
			hoardData, err := roots.Get(tx, roots.HoardRoot)
			if err != nil {
				return err
			}
			if hoardData.Desired == nil {
				log.Logger.Info().Msg("hoard has no desired content yet")
				fmt.Println("DONE")
				return nil
			}

			size, err := aggregate.TotalSize(tx, *hoardData.Desired, 0)
			if err != nil {
				return err
			}

			log.Logger.Info().Int64("total_size_bytes", size).Msg("hoard status")
			fmt.Println("DONE")
			return nil
		})
	},
}

var locateCmd = &cobra.Command{
	Use:   "locate <db> <object-id>",
	Short: "List every hoard path the hoard's desired content resolves an object ID to",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, hexID := args[0], args[1]

		raw, err := hex.DecodeString(hexID)
		if err != nil {
			return fmt.Errorf("decoding object id %q: %w", hexID, err)
		}
		id, err := object.IDFromBytes(raw)
		if err != nil {
			return err
		}

		s, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer s.Close()

		return s.ReadTxn(func(tx *store.ReadTx) error {
			hoardData, err := roots.Get(tx, roots.HoardRoot)
			if err != nil {
				return err
			}
			if hoardData.Desired == nil {
				log.Logger.Info().Msg("hoard has no desired content yet")
				fmt.Println("DONE")
				return nil
			}

			lookup, err := index.ObjToPaths(tx, *hoardData.Desired, 0)
			if err != nil {
				return err
			}
			paths, err := lookup.Get(id)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				log.WithObjectID(id.String()).Info().Msg("object not present in desired content")
			}
			for _, p := range paths {
				log.WithObjectID(id.String()).Info().Str("path", p.String()).Msg("located object")
			}
			fmt.Println("DONE")
			return nil
		})
	},
}

var findCmd = &cobra.Command{
	Use:   "find <db> <path>",
	Short: "Report whether a hoard path is present in the hoard's desired content",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, rawPath := args[0], args[1]
		path := hoardpath.New(rawPath)

		s, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer s.Close()

		return s.ReadTxn(func(tx *store.ReadTx) error {
			hoardData, err := roots.Get(tx, roots.HoardRoot)
			if err != nil {
				return err
			}
			if hoardData.Desired == nil {
				log.Logger.Info().Msg("hoard has no desired content yet")
				fmt.Println("DONE")
				return nil
			}

			lookup, err := index.PathHashToObj(tx, *hoardData.Desired, 0)
			if err != nil {
				return err
			}
			digest := object.ID(sha1.Sum([]byte(path.AsPosix())))
			ids, err := lookup.Get(digest)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				log.WithPath(path.String()).Info().Msg("path not present in desired content")
			}
			for _, id := range ids {
				log.WithPath(path.String()).Info().Str("object_id", id.String()).Msg("found object")
			}
			fmt.Println("DONE")
			return nil
		})
	},
}

func idOrNone(id *object.ID) string {
	if id == nil {
		return "-"
	}
	return id.String()
}
