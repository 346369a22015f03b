package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"hrportal/internal/domain/auth"
	"hrportal/internal/domain/navigation"
)

type routeAccess struct {
	ID       navigation.RouteID `json:"id" yaml:"id"`
	Path     string             `json:"path" yaml:"path"`
	Label    string             `json:"label" yaml:"label"`
	Audience string             `json:"audience" yaml:"audience"`
	Menu     bool               `json:"menu" yaml:"menu"`
	Roles    []auth.Role        `json:"roles" yaml:"roles"`
}

func newRoutesCmd() *cobra.Command {
	var format, role string
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Print the route table and which roles may open each route",
		RunE: func(cmd *cobra.Command, _ []string) error {
			matrix := accessMatrix()
			if role != "" {
				parsed, err := auth.ParseRole(role)
				if err != nil {
					return err
				}
				matrix = filterByRole(matrix, parsed)
			}
			return writeRoutes(cmd.OutOrStdout(), format, matrix)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "text", "output format: text, json or yaml")
	cmd.Flags().StringVar(&role, "role", "", "only routes this role may open")
	return cmd
}

func accessMatrix() []routeAccess {
	routes := navigation.Routes()
	out := make([]routeAccess, 0, len(routes))
	for _, route := range routes {
		entry := routeAccess{
			ID:       route.ID,
			Path:     route.Pattern,
			Label:    route.Label,
			Audience: route.Audience.String(),
			Menu:     route.Menu,
			Roles:    []auth.Role{},
		}
		for _, r := range auth.Roles {
			if navigation.CanAccess(r, route.ID) {
				entry.Roles = append(entry.Roles, r)
			}
		}
		out = append(out, entry)
	}
	return out
}

func filterByRole(matrix []routeAccess, role auth.Role) []routeAccess {
	var out []routeAccess
	for _, entry := range matrix {
		if navigation.CanAccess(role, entry.ID) {
			out = append(out, entry)
		}
	}
	return out
}

func writeRoutes(w io.Writer, format string, matrix []routeAccess) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(matrix)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(matrix); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tPATH\tAUDIENCE\tMENU\tROLES")
		for _, entry := range matrix {
			roles := make([]string, 0, len(entry.Roles))
			for _, r := range entry.Roles {
				roles = append(roles, r.String())
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", entry.ID, entry.Path, entry.Audience, entry.Menu, strings.Join(roles, ","))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
