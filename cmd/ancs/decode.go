package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/ancs/internal/ancs"
	"github.com/srg/ancs/pkg/config"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode captured ANCS payloads",
	Long: `Decodes raw payloads captured from the ANCS characteristics, for example with a
Bluetooth sniffer. Hex input may contain spaces, colons or a 0x prefix.

Examples:
  # Notification Source record
  ancs decode event 00 18 04 01 2a 00 00 00

  # Data Source response (Get Notification Attributes)
  ancs decode response 00 2a000000 01 0500 416c696365 --format json`,
}

var decodeEventCmd = &cobra.Command{
	Use:   "event <hex>...",
	Short: "Decode an 8-byte Notification Source record",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDecode(cmd, args, decodeEvent)
	},
}

var decodeResponseCmd = &cobra.Command{
	Use:   "response <hex>...",
	Short: "Decode a complete Data Source response",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDecode(cmd, args, decodeResponse)
	},
}

var decodeFormat string

func init() {
	decodeCmd.PersistentFlags().StringVar(&decodeFormat, "format", config.FormatText, "Output format: text, json or yaml")
	decodeCmd.AddCommand(decodeEventCmd)
	decodeCmd.AddCommand(decodeResponseCmd)
}

// decodedFields keeps the field order stable across output formats.
type decodedFields = orderedmap.OrderedMap[string, any]

func runDecode(cmd *cobra.Command, args []string, decode func([]byte) (*decodedFields, error)) error {
	switch decodeFormat {
	case config.FormatText, config.FormatJSON, config.FormatYAML:
	default:
		return fmt.Errorf("unsupported format %q for decode (supported: text, json, yaml)", decodeFormat)
	}

	data, err := parseHex(strings.Join(args, " "))
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	fields, err := decode(data)
	if err != nil {
		return err
	}
	return writeDecoded(cmd.OutOrStdout(), decodeFormat, fields)
}

// parseHex accepts "0x" prefixes and space, colon or dash separators.
func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "-", "", "0x", "", "0X", "").Replace(s)
	if s == "" {
		return nil, fmt.Errorf("no hex data given")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex input: %w", err)
	}
	return b, nil
}

func decodeEvent(b []byte) (*decodedFields, error) {
	ev, err := ancs.DecodeEvent(b)
	if err != nil {
		return nil, err
	}

	fields := orderedmap.New[string, any]()
	fields.Set("kind", ev.Kind.String())
	fields.Set("uid", ev.UID)
	fields.Set("category", ev.Category.String())
	fields.Set("category_count", ev.CategoryCount)
	fields.Set("flags", ev.Flags.String())
	return fields, nil
}

func decodeResponse(b []byte) (*decodedFields, error) {
	resp, err := ancs.DecodeResponse(b)
	if err != nil {
		return nil, err
	}

	fields := orderedmap.New[string, any]()
	fields.Set("command", resp.Command().String())

	switch r := resp.(type) {
	case ancs.NotificationAttributes:
		fields.Set("uid", r.UID)
		setIfPresent(fields, "app_identifier", r.AppIdentifier)
		setIfPresent(fields, "title", r.Title)
		setIfPresent(fields, "subtitle", r.Subtitle)
		setIfPresent(fields, "message", r.Message)
		if r.MessageSize > 0 {
			fields.Set("message_size", r.MessageSize)
		}
		if !r.Date.IsZero() {
			fields.Set("date", r.Date.Format(time.RFC3339))
		}
		setIfPresent(fields, "positive_action", r.PositiveActionLabel)
		setIfPresent(fields, "negative_action", r.NegativeActionLabel)
		ids := make([]int, 0, len(r.Extra))
		for id := range r.Extra {
			ids = append(ids, int(id))
		}
		sort.Ints(ids)
		for _, id := range ids {
			fields.Set(ancs.NotificationAttributeID(id).String(), r.Extra[ancs.NotificationAttributeID(id)])
		}
	case ancs.AppAttributes:
		fields.Set("app_identifier", r.AppIdentifier)
		setIfPresent(fields, "display_name", r.DisplayName)
		ids := make([]int, 0, len(r.Extra))
		for id := range r.Extra {
			ids = append(ids, int(id))
		}
		sort.Ints(ids)
		for _, id := range ids {
			fields.Set(ancs.AppAttributeID(id).String(), r.Extra[ancs.AppAttributeID(id)])
		}
	}
	return fields, nil
}

func setIfPresent(fields *decodedFields, key, value string) {
	if value != "" {
		fields.Set(key, value)
	}
}

func writeDecoded(out io.Writer, format string, fields *decodedFields) error {
	switch format {
	case config.FormatJSON:
		data, err := json.MarshalIndent(fields, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s\n", data)
		return err
	case config.FormatYAML:
		data, err := yaml.Marshal(fields)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	default:
		width := 0
		for pair := fields.Oldest(); pair != nil; pair = pair.Next() {
			width = max(width, len(pair.Key))
		}
		for pair := fields.Oldest(); pair != nil; pair = pair.Next() {
			if _, err := fmt.Fprintf(out, "%-*s  %v\n", width+1, pair.Key+":", pair.Value); err != nil {
				return err
			}
		}
		return nil
	}
}
