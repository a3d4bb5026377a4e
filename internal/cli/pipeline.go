package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// NewPipelineCmd создаёт команду просмотра pipeline.
func NewPipelineCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "pipeline",
		Short: "Show pipeline definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := clientFn().GetPipeline()
			if err != nil {
				return err
			}

			out := outputFn()
			if out.jsonMode {
				out.JSON(p)
				return nil
			}

			out.Title(p.Name)
			out.Table(
				[]string{"SCHEDULE", "TIMEZONE", "CATCHUP", "SENSOR"},
				[][]string{{
					p.Schedule,
					p.Timezone,
					strconv.FormatBool(p.Catchup),
					fmt.Sprintf("every %s, up to %s",
						time.Duration(p.SensorIntervalMs)*time.Millisecond,
						time.Duration(p.SensorTimeoutMs)*time.Millisecond),
				}},
			)

			out.Title("\nStages")
			rows := make([][]string, len(p.Stages))
			for i, s := range p.Stages {
				timeout := "-"
				if s.TimeoutSec > 0 {
					timeout = (time.Duration(s.TimeoutSec) * time.Second).String()
					if s.TimeoutFatal {
						timeout += " (fatal)"
					}
				}
				rows[i] = []string{strconv.Itoa(s.Ordinal), s.Name, s.Type, s.Upstream, strconv.Itoa(s.MaxAttempts), timeout}
			}
			out.Table([]string{"#", "NAME", "TYPE", "UPSTREAM", "ATTEMPTS", "TIMEOUT"}, rows)
			return nil
		},
	}
}
