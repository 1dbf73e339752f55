package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/mcoot/userdata/internal/model"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		o.printJSON(map[string]string{"message": msg})
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case *model.User:
		o.printUser(*v)
	case []model.User:
		o.printUsers(v)
	case *model.Game:
		o.printGame(*v)
	case []model.Game:
		o.printGames(v)
	case *model.RemotePlayer:
		o.printPlayer(*v)
	case []model.RemotePlayer:
		o.printPlayers(v)
	case *model.ManagedPlayer:
		o.printManaged(*v)
	case []model.ManagedPlayer:
		o.printManagedList(v)
	case []model.Container:
		o.printContainers(v)
	case HealthResult:
		fmt.Fprintf(o.w, "Status: %s\n", v.Status)
		if v.Component != "" {
			fmt.Fprintf(o.w, "Component: %s\n", v.Component)
		}
		if v.Websocket != "" {
			fmt.Fprintf(o.w, "Websocket: %s\n", v.Websocket)
		}
	case ReconcileResult:
		fmt.Fprintf(o.w, "Dropped %d container(s) of %s\n", v.Dropped, v.User)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// HealthResult response type
type HealthResult struct {
	Status    string `json:"status"`
	Component string `json:"component,omitempty"`
	Websocket string `json:"websocket,omitempty"`
}

// ReconcileResult reports a container reconcile
type ReconcileResult struct {
	User    string `json:"user"`
	Dropped int    `json:"dropped"`
}

func (o *Output) table(header string, rows func(tw io.Writer)) {
	tw := tabwriter.NewWriter(o.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	rows(tw)
	_ = tw.Flush()
}

func (o *Output) printUser(u model.User) {
	fmt.Fprintf(o.w, "User: %s\n", u.Name)
	fmt.Fprintf(o.w, "Fullname: %s\n", u.Fullname)
	fmt.Fprintf(o.w, "Email: %s\n", u.Email)
}

func (o *Output) printUsers(users []model.User) {
	o.table("NAME\tFULLNAME\tEMAIL", func(tw io.Writer) {
		for _, u := range users {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", u.Name, u.Fullname, u.Email)
		}
	})
}

func (o *Output) printGame(g model.Game) {
	fmt.Fprintf(o.w, "Game: %s/%s\n", g.User, g.Name)
	fmt.Fprintf(o.w, "Fullname: %s\n", g.Fullname)
	fmt.Fprintf(o.w, "Containers: %s\n", strings.Join(g.Containers, ", "))
}

func (o *Output) printGames(games []model.Game) {
	o.table("NAME\tFULLNAME\tCONTAINERS", func(tw io.Writer) {
		for _, g := range games {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", g.Name, g.Fullname, strings.Join(g.Containers, ","))
		}
	})
}

func (o *Output) printPlayer(p model.RemotePlayer) {
	fmt.Fprintf(o.w, "Player: %s\n", p.Name)
	fmt.Fprintf(o.w, "URL: %s\n", p.URL)
	fmt.Fprintf(o.w, "Fullname: %s\n", p.Fullname)
	if p.Language != "" {
		fmt.Fprintf(o.w, "Language: %s\n", p.Language)
	}
	fmt.Fprintf(o.w, "Default: %s\n", yesNo(p.IsDefault))
	fmt.Fprintf(o.w, "Containers: %s\n", strings.Join(p.Containers, ", "))
}

func (o *Output) printPlayers(players []model.RemotePlayer) {
	o.table("URL\tNAME\tFULLNAME\tDEFAULT\tCONTAINERS", func(tw io.Writer) {
		for _, p := range players {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				p.URL, p.Name, p.Fullname, yesNo(p.IsDefault), strings.Join(p.Containers, ","))
		}
	})
}

func (o *Output) printManaged(m model.ManagedPlayer) {
	fmt.Fprintf(o.w, "Managed player: %s (game %s/%s)\n", m.Name, m.User, m.Game)
	fmt.Fprintf(o.w, "Fullname: %s\n", m.Fullname)
	fmt.Fprintf(o.w, "Email: %s\n", m.Email)
	if m.Language != "" {
		fmt.Fprintf(o.w, "Language: %s\n", m.Language)
	}
}

func (o *Output) printManagedList(players []model.ManagedPlayer) {
	o.table("NAME\tFULLNAME\tEMAIL\tLANGUAGE", func(tw io.Writer) {
		for _, m := range players {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Name, m.Fullname, m.Email, m.Language)
		}
	})
}

func (o *Output) printContainers(containers []model.Container) {
	o.table("NAME\tREFCOUNT", func(tw io.Writer) {
		for _, c := range containers {
			fmt.Fprintf(tw, "%s\t%d\n", c.Name, c.Refcount)
		}
	})
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
