package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/foliostore/folio/internal/entity"
	"github.com/foliostore/folio/internal/model"
)

// NewEntityCommand creates the `folio entity` command tree.
func NewEntityCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Create, read and transition entities",
	}
	cmd.AddCommand(newEntityCreateCommand(opts))
	cmd.AddCommand(newEntityGetCommand(opts))
	cmd.AddCommand(newEntityUpdateCommand(opts))
	cmd.AddCommand(newEntityHistoryCommand(opts))
	cmd.AddCommand(newEntityEventsCommand(opts))
	cmd.AddCommand(newEntityTransitionCommand(opts, "publish",
		"Publish a version of an entity"))
	cmd.AddCommand(newEntityTransitionCommand(opts, "unpublish",
		"Withdraw the published version"))
	cmd.AddCommand(newEntityTransitionCommand(opts, "archive",
		"Archive an entity"))
	cmd.AddCommand(newEntityTransitionCommand(opts, "unarchive",
		"Restore an archived entity"))
	return cmd
}

// readFields resolves the --fields / --fields-file pair into a payload.
func readFields(inline, file string) (json.RawMessage, error) {
	if inline != "" && file != "" {
		return nil, fmt.Errorf("--fields and --fields-file are mutually exclusive")
	}
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read fields file: %w", err)
		}
		return raw, nil
	}
	if inline != "" {
		return json.RawMessage(inline), nil
	}
	return json.RawMessage("{}"), nil
}

func parseRef(arg string) (uuid.UUID, error) {
	ref, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid entity id %q", arg), err)
	}
	return ref, nil
}

func newEntityCreateCommand(opts *RootOptions) *cobra.Command {
	var (
		name       string
		entityType string
		authKey    string
		resolved   string
		fields     string
		fieldsFile string
		actor      string
		id         string
		upsert     bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft entity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readFields(fields, fieldsFile)
			if err != nil {
				return WrapExitError(ExitCommandError, "fields", err)
			}
			draft := entity.Draft{
				Name:            name,
				Type:            entityType,
				AuthKey:         authKey,
				ResolvedAuthKey: resolved,
				Fields:          payload,
				CreatedBy:       actor,
			}
			if id != "" {
				ref, err := parseRef(id)
				if err != nil {
					return err
				}
				draft.UUID = &ref
			}
			return opts.withServices(cmd.Flags().Changed("config"), func(s *services) error {
				out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
				if upsert {
					created, wasCreated, err := s.store.Upsert(cmd.Context(), draft)
					if err != nil {
						return err
					}
					if err := out.EmitEntity(created); err != nil {
						return err
					}
					if opts.Format == "text" {
						fmt.Fprintf(cmd.OutOrStdout(), "created=%t\n", wasCreated)
					}
					return nil
				}
				createdEnt, err := s.store.Create(cmd.Context(), draft)
				if err != nil {
					return err
				}
				return out.EmitEntity(createdEnt)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "unique display name")
	cmd.Flags().StringVar(&entityType, "type", "", "entity type")
	cmd.Flags().StringVar(&authKey, "auth-key", "", "owning auth key")
	cmd.Flags().StringVar(&resolved, "resolved-auth-key", "", "resolved auth key")
	cmd.Flags().StringVar(&fields, "fields", "", "field payload as inline JSON")
	cmd.Flags().StringVar(&fieldsFile, "fields-file", "", "field payload from a JSON file")
	cmd.Flags().StringVar(&actor, "actor", "", "author recorded on the version")
	cmd.Flags().StringVar(&id, "uuid", "", "external id (allocated when omitted)")
	cmd.Flags().BoolVar(&upsert, "upsert", false, "update instead when the uuid exists")
	cobra.CheckErr(cmd.MarkFlagRequired("name"))
	cobra.CheckErr(cmd.MarkFlagRequired("type"))
	return cmd
}

func newEntityGetCommand(opts *RootOptions) *cobra.Command {
	var version int64
	cmd := &cobra.Command{
		Use:   "get <uuid>",
		Short: "Read one entity, or one of its versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			return opts.withServices(cmd.Flags().Changed("config"), func(s *services) error {
				out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
				if cmd.Flags().Changed("version") {
					v, err := s.store.GetVersion(cmd.Context(), ref, version)
					if err != nil {
						return err
					}
					return out.Emit(map[string]any{
						"version":   v.Version,
						"createdAt": v.CreatedAt,
						"createdBy": v.CreatedBy,
						"fields":    v.Fields,
					}, func(w io.Writer) {
						fmt.Fprintf(w, "version %d by %s\n%s\n", v.Version, v.CreatedBy, v.Fields)
					})
				}
				ent, err := s.store.Get(cmd.Context(), ref)
				if err != nil {
					return err
				}
				return out.EmitEntity(ent)
			})
		},
	}
	cmd.Flags().Int64Var(&version, "version", 0, "read this version instead of the entity")
	return cmd
}

func newEntityUpdateCommand(opts *RootOptions) *cobra.Command {
	var (
		fields     string
		fieldsFile string
		rename     string
		actor      string
	)
	cmd := &cobra.Command{
		Use:   "update <uuid>",
		Short: "Append a new version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			payload, err := readFields(fields, fieldsFile)
			if err != nil {
				return WrapExitError(ExitCommandError, "fields", err)
			}
			req := entity.UpdateRequest{Fields: payload, UpdatedBy: actor}
			if cmd.Flags().Changed("rename") {
				req.Rename = &rename
			}
			return opts.withServices(cmd.Flags().Changed("config"), func(s *services) error {
				ent, err := s.store.Update(cmd.Context(), ref, req)
				if err != nil {
					return err
				}
				out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
				return out.EmitEntity(ent)
			})
		},
	}
	cmd.Flags().StringVar(&fields, "fields", "", "field payload as inline JSON")
	cmd.Flags().StringVar(&fieldsFile, "fields-file", "", "field payload from a JSON file")
	cmd.Flags().StringVar(&rename, "rename", "", "new display name")
	cmd.Flags().StringVar(&actor, "actor", "", "author recorded on the version")
	return cmd
}

func newEntityHistoryCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <uuid>",
		Short: "List every version of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			return opts.withServices(cmd.Flags().Changed("config"), func(s *services) error {
				versions, err := s.store.History(cmd.Context(), ref)
				if err != nil {
					return err
				}
				out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
				return out.Emit(versions, func(w io.Writer) {
					for _, v := range versions {
						fmt.Fprintf(w, "v%d  %s  by %s\n",
							v.Version, v.CreatedAt.Format("2006-01-02 15:04:05"), v.CreatedBy)
					}
				})
			})
		},
	}
	return cmd
}

func newEntityEventsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events <uuid>",
		Short: "List the publishing audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			return opts.withServices(cmd.Flags().Changed("config"), func(s *services) error {
				events, err := s.store.PublishingHistory(cmd.Context(), ref)
				if err != nil {
					return err
				}
				out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
				return out.Emit(events, func(w io.Writer) {
					for _, ev := range events {
						fmt.Fprintf(w, "%s  %s  by %s\n",
							ev.At.Format("2006-01-02 15:04:05"), ev.Kind, ev.Actor)
					}
				})
			})
		},
	}
	return cmd
}

// newEntityTransitionCommand builds the four FSM commands, which share
// their flag surface.
func newEntityTransitionCommand(opts *RootOptions, verb, short string) *cobra.Command {
	var (
		version int64
		actor   string
	)
	cmd := &cobra.Command{
		Use:   verb + " <uuid>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			return opts.withServices(cmd.Flags().Changed("config"), func(s *services) error {
				var ent model.Entity
				switch verb {
				case "publish":
					ent, err = s.store.Publish(cmd.Context(), ref, version, actor)
				case "unpublish":
					var affected []uuid.UUID
					ent, affected, err = s.store.Unpublish(cmd.Context(), ref, actor)
					if err == nil && len(affected) > 0 && opts.Format == "text" {
						for _, a := range affected {
							fmt.Fprintf(cmd.OutOrStdout(), "dangling published reference from %s\n", a)
						}
					}
				case "archive":
					ent, err = s.store.Archive(cmd.Context(), ref, actor)
				case "unarchive":
					ent, err = s.store.Unarchive(cmd.Context(), ref, actor)
				}
				if err != nil {
					return err
				}
				out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
				return out.EmitEntity(ent)
			})
		},
	}
	if verb == "publish" {
		cmd.Flags().Int64Var(&version, "version", 1, "version number to publish")
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor recorded on the event")
	return cmd
}
