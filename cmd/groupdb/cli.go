// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/codegangsta/cli"
	shlex "github.com/flynn-archive/go-shlex"
	"github.com/peterh/liner"

	log "github.com/golang/glog"

	"github.com/groupdb/groupdb/internal/group"
)

var usage = `
	groupdb is a tool to inspect and manipulate a single groupdb database
	file. It also provides a way to issue one command at a time or to start
	a command line interpreter to issue commands interactively.

	You can use groupdb in two modes: either issue one command against a
	given file or start a command line interpreter to issue commands
	interactively. You can issue just one command by typing something like:

		groupdb --db <path> <subcommand> [<flags>...]

	Alternatively, start an interpreter with:

		groupdb --db <path> shell

	In this mode you are able to issue commands interactively, with history
	and tab completion over subcommand names.
	`

// groupCli lets a user inspect and mutate a single groupdb file.
type groupCli struct {
	g *group.Group
	// path we last attached g to. Cached so repeated commands against
	// the same --db flag don't reopen the file.
	dbCacheKey string

	app *cli.App

	inShell bool
}

// newGroupCli creates a new groupCli object.
func newGroupCli() *groupCli {
	b := &groupCli{}
	app := cli.NewApp()
	app.Name = "groupdb"
	app.Usage = usage
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "db",
			Usage: "path to the database file to operate on",
		},
		cli.BoolFlag{
			Name:  "create",
			Usage: "create the database file if it doesn't exist",
		},
		cli.BoolFlag{
			Name:  "allow_upgrade",
			Usage: "allow opening a file whose format version predates the current target",
		},
		cli.StringSliceFlag{
			Name:  "setup",
			Usage: "commands to run before doing anything else, separated by semicolon",
		},
	}

	nameFlag := cli.StringFlag{
		Name:  "name, n",
		Usage: "table name",
	}
	indexFlag := cli.IntFlag{
		Name:  "index, i",
		Usage: "table index",
		Value: -1,
	}
	outFlag := cli.StringFlag{
		Name:  "out, o",
		Usage: "file to write output to (defaults to stdout)",
	}
	uniqueFlag := cli.BoolTFlag{
		Name:  "unique",
		Usage: "require the table name be unique",
	}

	app.Commands = []cli.Command{
		{
			Name:   "ls",
			Usage:  "Lists the tables in the group.",
			Action: b.cmdList,
		},
		{
			Name:    "insert-table",
			Aliases: []string{"create-table"},
			Usage:   "Inserts a new table at the end of (or a given index in) the group.",
			Flags: []cli.Flag{
				nameFlag,
				indexFlag,
				uniqueFlag,
			},
			Action: b.cmdInsertTable,
		},
		{
			Name:    "remove-table",
			Aliases: []string{"rm-table"},
			Usage:   "Removes a table by name or index.",
			Flags: []cli.Flag{
				nameFlag,
				indexFlag,
			},
			Action: b.cmdRemoveTable,
		},
		{
			Name:  "rename-table",
			Usage: "Renames a table.",
			Flags: []cli.Flag{
				indexFlag,
				cli.StringFlag{
					Name:  "to",
					Usage: "new table name",
				},
			},
			Action: b.cmdRenameTable,
		},
		{
			Name:   "commit",
			Usage:  "Commits the current transaction, writing a new top-ref.",
			Action: b.cmdCommit,
		},
		{
			Name:  "write",
			Usage: "Writes a compact copy of the group to a new file.",
			Flags: []cli.Flag{
				outFlag,
				cli.BoolFlag{
					Name:  "pad",
					Usage: "pad the streaming image for later in-place encryption",
				},
			},
			Action: b.cmdWrite,
		},
		{
			Name:   "verify",
			Usage:  "Checks internal consistency of the attached group.",
			Action: b.cmdVerify,
		},
		{
			Name:   "to-dot",
			Usage:  "Prints a Graphviz sketch of tables and link columns.",
			Action: b.cmdToDot,
		},
		{
			Name:   "to-string",
			Usage:  "Prints a short human-readable dump of the group.",
			Action: b.cmdToString,
		},
		{
			Name:   "shell",
			Usage:  "Starts a shell for interaction.",
			Action: b.cmdShell,
		},
	}
	app.Before = b.beforeSubcommandRun
	b.app = app

	// By default 'HelpName' will be the parent command name('groupdb' in
	// our case) + command name. Overwrite 'HelpName' to be command name
	// only.
	for i := range b.app.Commands {
		b.app.Commands[i].HelpName = b.app.Commands[i].Name
	}
	return b
}

// run starts a command specified by the user.
func (b *groupCli) run(args []string) error {
	return b.app.Run(args)
}

// stop frees up all resources used by the groupCli object.
func (b *groupCli) stop() {
	if b.g != nil && b.g.IsAttached() {
		if err := b.g.Detach(); err != nil {
			log.Errorf("detach error: %s", err)
		}
	}
}

// getGroup returns an attached Group for the --db flag, opening it if
// this is the first command to touch this path (or a different path
// than the last command used).
func (b *groupCli) getGroup(c *cli.Context) *group.Group {
	path := c.GlobalString("db")
	if path == "" {
		log.Errorf("No database file provided. Use --db.")
		return nil
	}
	if b.g != nil && b.g.IsAttached() && b.dbCacheKey == path {
		return b.g
	}
	if b.g != nil && b.g.IsAttached() {
		b.g.Detach()
	}

	mode := group.ModeReadWriteNoCreate
	if c.GlobalBool("create") {
		mode = group.ModeReadWrite
	}
	cfg := group.DefaultConfig
	cfg.Mode = mode
	cfg.AllowUpgrade = c.GlobalBool("allow_upgrade")

	g := group.New(cfg)
	if err := g.Open(path); err != nil {
		log.Errorf("Couldn't open %s: %s", path, err)
		return nil
	}
	b.g = g
	b.dbCacheKey = path
	return g
}

// beforeSubcommandRun runs before any subcommand starts so setup
// commands can run first.
func (b *groupCli) beforeSubcommandRun(c *cli.Context) error {
	commands := c.GlobalStringSlice("setup")
	if len(commands) != 0 {
		log.Infof("Running setup commands...")
		for _, command := range commands {
			log.Infof("Running command %q", command)
			if err := b.runCommand(c, strings.Fields(command)...); err != nil {
				log.Errorf("error: %v", err)
				return err
			}
		}
		log.Infof("Setup is done!")
	}
	return nil
}

// resolveTableIndex turns --name/--index flags into a concrete table
// index, preferring an explicit name lookup over a raw index.
func resolveTableIndex(g *group.Group, c *cli.Context) (int, error) {
	if name := c.String("name"); name != "" {
		if !g.HasTable(name) {
			return 0, fmt.Errorf("no such table %q", name)
		}
		for i := 0; i < g.Size(); i++ {
			if g.GetTableName(i) == name {
				return i, nil
			}
		}
	}
	idx := c.Int("index")
	if idx < 0 {
		return 0, fmt.Errorf("must specify --name or --index")
	}
	return idx, nil
}

// cmdList implements the "ls" subcommand.
func (b *groupCli) cmdList(c *cli.Context) {
	g := b.getGroup(c)
	if g == nil {
		return
	}
	for i := 0; i < g.Size(); i++ {
		log.Infof("[%d] %s", i, g.GetTableName(i))
	}
}

// cmdInsertTable implements the "insert-table" subcommand.
func (b *groupCli) cmdInsertTable(c *cli.Context) {
	g := b.getGroup(c)
	if g == nil {
		return
	}
	name := c.String("name")
	if name == "" {
		log.Errorf("Must specify --name.")
		return
	}
	idx := c.Int("index")
	if idx < 0 {
		idx = g.Size()
	}
	if _, err := g.InsertTable(idx, name, c.BoolT("unique")); err != nil {
		log.Errorf("Couldn't insert table %q: %s", name, err)
		return
	}
	log.Infof("Inserted table %q at index %d", name, idx)
}

// cmdRemoveTable implements the "remove-table" subcommand.
func (b *groupCli) cmdRemoveTable(c *cli.Context) {
	g := b.getGroup(c)
	if g == nil {
		return
	}
	idx, err := resolveTableIndex(g, c)
	if err != nil {
		log.Errorf("%s", err)
		return
	}
	if err := g.RemoveTable(idx); err != nil {
		log.Errorf("Couldn't remove table %d: %s", idx, err)
		return
	}
	log.Infof("Removed table %d", idx)
}

// cmdRenameTable implements the "rename-table" subcommand.
func (b *groupCli) cmdRenameTable(c *cli.Context) {
	g := b.getGroup(c)
	if g == nil {
		return
	}
	idx, err := resolveTableIndex(g, c)
	if err != nil {
		log.Errorf("%s", err)
		return
	}
	to := c.String("to")
	if to == "" {
		log.Errorf("Must specify --to.")
		return
	}
	if err := g.RenameTable(idx, to, true); err != nil {
		log.Errorf("Couldn't rename table %d: %s", idx, err)
		return
	}
	log.Infof("Renamed table %d to %q", idx, to)
}

// cmdCommit implements the "commit" subcommand.
func (b *groupCli) cmdCommit(c *cli.Context) {
	g := b.getGroup(c)
	if g == nil {
		return
	}
	ref, err := g.Commit()
	if err != nil {
		log.Errorf("Commit failed: %s", err)
		return
	}
	log.Infof("Committed, new top-ref=%d", ref)
}

// cmdWrite implements the "write" subcommand.
func (b *groupCli) cmdWrite(c *cli.Context) {
	g := b.getGroup(c)
	if g == nil {
		return
	}
	data, err := g.Write(c.Bool("pad"), 0)
	if err != nil {
		log.Errorf("Write failed: %s", err)
		return
	}
	out := c.String("out")
	if out == "" {
		fmt.Println(string(data))
		return
	}
	if err := ioutil.WriteFile(out, data, 0644); err != nil {
		log.Errorf("Couldn't write %s: %s", out, err)
		return
	}
	log.Infof("Wrote %d bytes to %s", len(data), out)
}

// cmdVerify implements the "verify" subcommand.
func (b *groupCli) cmdVerify(c *cli.Context) {
	g := b.getGroup(c)
	if g == nil {
		return
	}
	if err := g.Verify(); err != nil {
		log.Errorf("Verify failed: %s", err)
		return
	}
	log.Infof("OK")
}

// cmdToDot implements the "to-dot" subcommand.
func (b *groupCli) cmdToDot(c *cli.Context) {
	g := b.getGroup(c)
	if g == nil {
		return
	}
	fmt.Println(g.ToDot())
}

// cmdToString implements the "to-string" subcommand.
func (b *groupCli) cmdToString(c *cli.Context) {
	g := b.getGroup(c)
	if g == nil {
		return
	}
	fmt.Println(g.ToString())
}

// cmdShell implements the "shell" subcommand.
func (b *groupCli) cmdShell(c *cli.Context) {
	b.inShell = true
	defer func() { b.inShell = false }()

	// Make cli not exit on errors.
	cli.OsExiter = func(int) {}

	ln := liner.NewLiner()
	ln.SetCtrlCAborts(true)

	// Add command name auto completion. SetCompleter is called with the
	// currently edited line content to the left of the cursor and
	// returns a list of completion candidates.
	ln.SetCompleter(func(line string) (c []string) {
		for _, cmd := range b.app.Commands {
			if strings.HasPrefix(cmd.Name, line) {
				c = append(c, cmd.Name)
			}
		}
		return
	})

	defer ln.Close()

	for {
		input, err := ln.Prompt(fmt.Sprintf("(%s) ", "groupdb"))
		if err != nil {
			log.Errorf("error: %v", err)
			return
		}

		// We use 'shlex' because we want to split the input line into
		// tokens using shell-style rules for quoting and commenting.
		args, err := shlex.Split(input)
		if err != nil {
			log.Errorf("error: %v", err)
			continue
		}

		if len(args) == 0 {
			continue
		}

		if args[0] == "exit" {
			return
		}

		if b.runCommand(c, args...) == nil {
			ln.AppendHistory(input)
		}
	}
}

// runCommand runs a command after the cli has already started (either
// from the shell or from --setup).
func (b *groupCli) runCommand(c *cli.Context, args ...string) error {
	cliArgs := []string{"groupdb", "--db", c.GlobalString("db")}
	if c.GlobalBool("create") {
		cliArgs = append(cliArgs, "--create")
	}
	cliArgs = append(cliArgs, args...)
	return b.run(cliArgs)
}
