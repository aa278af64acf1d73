package prefs

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"github.com/ValentinKolb/prefkv/cmd/util"
	"github.com/ValentinKolb/prefkv/lib/codec"
	"github.com/ValentinKolb/prefkv/lib/common"
	"github.com/spf13/cobra"
)

var (
	// conf is filled by the PersistentPreRunE of the root command
	conf *common.Config

	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value of a preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := typeFlag(cmd)
			if err != nil {
				return err
			}
			def, _ := cmd.Flags().GetString("default")
			return runGet(cmd.Context(), cmd.OutOrStdout(), conf, t, args[0], def)
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value of a preference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := typeFlag(cmd)
			if err != nil {
				return err
			}
			return runSet(cmd.OutOrStdout(), conf, t, args[0], args[1])
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key...]",
		Short: "Removes preferences",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clearAll, _ := cmd.Flags().GetBool("all")
			return runDel(cmd.OutOrStdout(), conf, args, clearAll)
		},
	}
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists all stored preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd.OutOrStdout(), conf)
		},
	}
	watchCmd = &cobra.Command{
		Use:   "watch [key...]",
		Short: "Prints every change of the given preferences until interrupted",
		Long: `Prints every change of the given preferences until interrupted. The data file
is watched for changes of other processes, regardless of the --watch flag.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := typeFlag(cmd)
			if err != nil {
				return err
			}
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()
			watchConf := *conf
			watchConf.Watch = watchConf.DataFile != ""
			return runWatch(ctx, cmd.OutOrStdout(), &watchConf, t, args)
		},
	}
)

// Commands returns the preference commands
func Commands() []*cobra.Command {
	return []*cobra.Command{getCmd, setCmd, delCmd, listCmd, watchCmd}
}

// SetConfig passes the processed configuration to the commands
func SetConfig(c *common.Config) {
	conf = c
}

func init() {
	for _, cmd := range []*cobra.Command{getCmd, setCmd, watchCmd} {
		key := "type"
		cmd.Flags().StringP(key, "t", "string", util.WrapString("The value type of the preference (bool, int32, int64, float32, string)"))
	}

	key := "default"
	getCmd.Flags().StringP(key, "d", "", util.WrapString("The value printed if the preference is not set"))

	key = "all"
	delCmd.Flags().Bool(key, false, util.WrapString("Remove every preference before removing the given keys"))
}

func typeFlag(cmd *cobra.Command) (codec.Type, error) {
	name, _ := cmd.Flags().GetString("type")
	return codec.ParseType(name)
}

// --------------------------------------------------------------------------
// Command implementations
// --------------------------------------------------------------------------

func runGet(ctx context.Context, w io.Writer, conf *common.Config, t codec.Type, key, def string) error {
	tp, err := typedFor(t)
	if err != nil {
		return err
	}
	s, err := openSession(conf)
	if err != nil {
		return err
	}
	defer s.close()

	read, err := tp.get(s, key, def)
	if err != nil {
		return err
	}
	if err := s.start(); err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := s.timeout(ctx)
	defer cancel()
	value, err := read(ctx)
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	_, err = fmt.Fprintf(w, "key=%s, type=%s, value=%s\n", key, t, value)
	return err
}

func runSet(w io.Writer, conf *common.Config, t codec.Type, key, value string) error {
	tp, err := typedFor(t)
	if err != nil {
		return err
	}
	s, err := openSession(conf)
	if err != nil {
		return err
	}
	defer s.close()

	write, err := tp.set(s, key, value)
	if err != nil {
		return err
	}
	if err := s.start(); err != nil {
		return err
	}
	if err := write(); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	_, err = fmt.Fprintln(w, "set successfully")
	return err
}

func runDel(w io.Writer, conf *common.Config, keys []string, clearAll bool) error {
	st, err := util.OpenStore(conf)
	if err != nil {
		return err
	}
	defer st.Close()

	editor := st.Edit()
	if clearAll {
		editor.Clear()
	}
	for _, key := range keys {
		editor.Remove(key)
	}
	if err := editor.Commit(); err != nil {
		return fmt.Errorf("removing %v: %w", keys, err)
	}
	_, err = fmt.Fprintln(w, "delete successfully")
	return err
}

func runList(w io.Writer, conf *common.Config) error {
	st, err := util.OpenStore(conf)
	if err != nil {
		return err
	}
	defer st.Close()

	all, err := st.All()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(all))
	for key := range all {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value, err := codec.Format(all[key])
		if err != nil {
			plog.Warningf("skipping %s: %v", key, err)
			continue
		}
		if _, err := fmt.Fprintf(w, "key=%s, type=%s, value=%s\n", key, codec.TypeOf(all[key]), value); err != nil {
			return err
		}
	}
	return nil
}

func runWatch(ctx context.Context, w io.Writer, conf *common.Config, t codec.Type, keys []string) error {
	tp, err := typedFor(t)
	if err != nil {
		return err
	}
	s, err := openSession(conf)
	if err != nil {
		return err
	}
	defer s.close()

	var mu sync.Mutex
	out := func(name, value string) {
		mu.Lock()
		defer mu.Unlock()
		_, _ = fmt.Fprintf(w, "key=%s, type=%s, value=%s\n", name, t, value)
	}
	for _, key := range keys {
		if err := tp.watch(s, key, out); err != nil {
			return err
		}
	}
	if err := s.start(); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}
