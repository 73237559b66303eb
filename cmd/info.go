package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/seamd/seamd/internal/ipc"
	"github.com/seamd/seamd/internal/ui"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show runtime information from the running server",
	Long: `Query the running seamd server over its control socket and print the
server, keyboard, display, cursor and client state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ipc.NewClient()
		if err != nil {
			fmt.Println("seamd server is not running")
			return nil
		}
		defer client.Close()

		info, err := client.Info()
		if err != nil {
			return fmt.Errorf("failed to query the server: %w", err)
		}

		var output strings.Builder
		output.WriteString(ui.TitleStyle.Render("seamd server info"))
		output.WriteString("\n")

		for _, ns := range namespaceOrder(info) {
			section, ok := info[ns].(map[string]any)
			if !ok {
				continue
			}
			output.WriteString("\n")
			output.WriteString(ui.SubheaderStyle.Render("[" + ns + "]"))
			output.WriteString("\n")
			writeSection(&output, section, "  ")
		}

		fmt.Println(output.String())
		return nil
	},
}

// namespaceOrder keeps the well-known namespaces on top and sorts the
// rest alphabetically after them.
func namespaceOrder(info map[string]any) []string {
	head := []string{"server", "clients", "display", "keyboard", "cursor"}
	seen := make(map[string]bool, len(head))
	var order []string
	for _, ns := range head {
		if _, ok := info[ns]; ok {
			order = append(order, ns)
			seen[ns] = true
		}
	}
	var rest []string
	for ns := range info {
		if !seen[ns] {
			rest = append(rest, ns)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

func writeSection(out *strings.Builder, section map[string]any, indent string) {
	keys := make([]string, 0, len(section))
	for k := range section {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := section[k].(type) {
		case map[string]any:
			out.WriteString(indent)
			out.WriteString(ui.BoldStyle.Render(k))
			out.WriteString(":\n")
			writeSection(out, v, indent+"  ")
		default:
			out.WriteString(indent)
			out.WriteString(ui.SubtleStyle.Render(k))
			out.WriteString(": ")
			out.WriteString(formatValue(v))
			out.WriteString("\n")
		}
	}
}

// formatValue renders a JSON-decoded value; whole numbers arrive as
// float64 and would otherwise print with a spurious exponent.
func formatValue(v any) string {
	switch n := v.(type) {
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
		return fmt.Sprintf("%g", n)
	case []any:
		parts := make([]string, len(n))
		for i, e := range n {
			parts[i] = formatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", v)
	}
}
