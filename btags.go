// This file is part of btags.
//
// btags is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// btags is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with btags.  If not, see <https://www.gnu.org/licenses/>.

// Command btags extracts a ctags-compatible tag index from an
// object file's DWARF debug information. Flag and config handling
// follows the cucaracha root command's cobra+viper pattern; the
// underlying extraction pipeline lives in elfsource, dwarfcursor,
// tagextract, macroinfo, schedule, store and ctagsfmt.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dwarftags/btags/ctagsfmt"
	"github.com/dwarftags/btags/dwarfcursor"
	"github.com/dwarftags/btags/elfsource"
	"github.com/dwarftags/btags/logger"
	"github.com/dwarftags/btags/schedule"
	"github.com/dwarftags/btags/store"
	"github.com/dwarftags/btags/tagerrors"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "btags <binary>",
	Short: "Extract a ctags tag index from an object file's DWARF debug info",
	Long: `btags parses the DWARF debug information embedded in an ELF object
file, extracts functions, types, variables, macros, members, enumerators
and parameters, and renders them as a ctags-compatible tag file.`,
	Args: cobra.ExactArgs(1),
	RunE: runBtags,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.Flags()
	flags.StringP("project-dir", "s", "", "paths in the tag file are relative to this directory")
	flags.StringP("compile-dir", "c", "", "actual compile directory, used to resolve source paths")
	flags.StringP("tag-file", "t", "./tags", "save path of the generated tag file")
	flags.BoolP("only-database", "o", false, "only populate the store, do not render a tag file")
	flags.IntP("jobs", "j", 1, "number of worker goroutines")
	flags.BoolP("append-tag", "a", false, "append to an existing tag file instead of replacing it")
	flags.StringP("database-file", "d", "", "save path of a persistent tag database (default: in-memory only)")
	flags.BoolP("append-db", "A", false, "do not remove an existing database, reuse it as-is")
	flags.BoolP("new-db", "n", false, "remove an existing database and rebuild it from scratch")
	flags.StringVar(&cfgFile, "config", "", "config file (default $HOME/.btags.yaml)")

	rootCmd.MarkFlagsMutuallyExclusive("append-db", "new-db")

	_ = viper.BindPFlags(flags)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".btags")
		}
	}
	viper.SetEnvPrefix("btags")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

func runBtags(cmd *cobra.Command, args []string) error {
	binPath := args[0]
	tagPath := viper.GetString("tag-file")
	onlyDatabase := viper.GetBool("only-database")
	appendTag := viper.GetBool("append-tag")
	jobs := viper.GetInt("jobs")
	projectDir := viper.GetString("project-dir")
	if projectDir == "" {
		projectDir = filepath.Dir(tagPath)
	}
	compileDir := viper.GetString("compile-dir")
	dbPath := viper.GetString("database-file")
	newDB := viper.GetBool("new-db")

	bold := color.New(color.Bold)
	ok := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)
	fail := color.New(color.FgRed)

	obj, err := elfsource.Open(binPath)
	if err != nil {
		if tagerrors.IsKind(err, tagerrors.InputAbsent) {
			warn.Fprintln(cmd.OutOrStdout(), "No debug info found in binary file.")
			return nil
		}
		return err
	}
	defer obj.Close()

	macinfoBytes, _ := obj.MacinfoSection()

	// -d/-A/-n (spec §6.3, grounded on btags.py's database-file/
	// append-db/new-db group): -n forces a fresh database by removing
	// any existing file first; otherwise an existing database is
	// reused as-is (-A is the explicit spelling of that default, kept
	// only so it can't be combined with -n - see MarkFlagsMutuallyExclusive
	// in init). Parsing is skipped entirely when an existing database
	// was reused, matching the original's "if not os.path.exists(db_path)"
	// gate: the tag file is regenerated from whatever the database
	// already holds.
	var st store.Store
	skipParse := false
	if dbPath != "" {
		if newDB {
			_ = os.Remove(dbPath)
		}
		ds := store.NewDiskStore()
		if err := ds.Prepare(dbPath); err != nil {
			return err
		}
		skipParse = ds.Loaded()
		st = ds
	} else {
		ms := store.NewMemoryStore()
		if err := ms.Prepare(""); err != nil {
			return err
		}
		st = ms
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if skipParse {
		warn.Fprintln(cmd.OutOrStdout(), "Reusing existing database, skipping parse.")
	} else {
		cursor := dwarfcursor.New(obj.DWARF())
		sched := &schedule.Scheduler{
			Cursor:      cursor,
			Store:       st,
			Jobs:        jobs,
			MacinfoData: macinfoBytes,
			Logger:      logger.Default(),
		}

		bold.Fprintln(cmd.OutOrStdout(), "Parsing tags and filling the store...")
		stats, err := sched.Run(ctx)
		if err != nil {
			fail.Fprintln(cmd.ErrOrStderr(), err)
			return err
		}
		ok.Fprintf(cmd.OutOrStdout(), "%d compile units, %d tags, %d macros\n", stats.CompileUnits, stats.Tags, stats.Macros)
	}

	if onlyDatabase {
		return nil
	}

	bold.Fprintln(cmd.OutOrStdout(), "Generating tag file...")
	rows, err := st.Query()
	if err != nil {
		return err
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendTag {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	out, err := os.OpenFile(tagPath, flags, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := ctagsfmt.Write(out, rows, projectDir, compileDir); err != nil {
		return err
	}

	ok.Fprintln(cmd.OutOrStdout(), "Done!")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
