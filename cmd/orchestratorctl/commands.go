package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/macrosim/internal/decision"
	"github.com/talgya/macrosim/internal/registry"
	"github.com/talgya/macrosim/internal/worldstate"
)

func newCreateSimulationCommand() *cobra.Command {
	var simID string
	var households int
	var allowFallback bool

	cmd := &cobra.Command{
		Use:   "create-simulation",
		Short: "Create a simulation and seed its initial world state",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			cfg := env.cfg
			cfg.AllowFallbackForMissing = allowFallback

			summary, err := env.orch.CreateSimulation(cmd.Context(), simID, cfg, seedWorld(households))
			if err != nil {
				return err
			}
			fmt.Printf("simulation %s created: status=%s ticks_per_day=%s\n",
				summary.ID, summary.Status, humanize.Comma(int64(summary.TicksPerDay)))
			return nil
		},
	}
	cmd.Flags().StringVar(&simID, "id", "", "simulation id (generated if omitted)")
	cmd.Flags().IntVar(&households, "households", 10, "number of households to seed")
	cmd.Flags().BoolVar(&allowFallback, "allow-fallback-for-missing", false, "tolerate missing script bindings by falling back to baseline decisions")
	return cmd
}

// seedWorld builds a starting WorldState with n households and one of each
// singleton agent, all at neutral baseline values — the same starting point
// the Baseline Fallback Manager itself would compute for an unemployed,
// unindebted household.
func seedWorld(n int) *worldstate.WorldState {
	households := make(map[string]*worldstate.HouseholdState, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("household-%03d", i+1)
		households[id] = &worldstate.HouseholdState{
			ID:               id,
			Cash:             100,
			Deposits:         400,
			Skill:            1.0,
			EducationLevel:   0.5,
			EmploymentStatus: worldstate.Unemployed,
			LaborSupply:      1.0,
			ReservationWage:  10,
		}
	}
	return &worldstate.WorldState{
		Households: households,
		Firm: &worldstate.FirmState{
			Cash:         1000,
			Price:        1.0,
			WageOffer:    10,
			Inventory:    0,
			CapitalStock: 1000,
			Productivity: 1.0,
		},
		Bank: &worldstate.BankState{
			Reserves:    500,
			Deposits:    400 * float64(n),
			Loans:       map[string]float64{},
			DepositRate: 0.01,
			LoanRate:    0.05,
		},
		CentralBank: &worldstate.CentralBankState{
			PolicyRate:         0.03,
			ReserveRatio:       0.1,
			InflationTarget:    0.02,
			UnemploymentTarget: 0.05,
		},
		Government: &worldstate.GovernmentState{
			TaxRate:             0.2,
			UnemploymentBenefit: 5,
		},
		Macro: worldstate.MacroState{
			PriceIndex: 1.0,
			WageIndex:  10,
		},
	}
}

func newResetSimulationCommand() *cobra.Command {
	var households int
	var allowFallback bool
	cmd := &cobra.Command{
		Use:   "reset-simulation <simulation-id>",
		Short: "Reset a simulation's cadence counters and world state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			cfg := env.cfg
			cfg.AllowFallbackForMissing = allowFallback
			if err := env.orch.ResetSimulation(cmd.Context(), args[0], cfg, seedWorld(households)); err != nil {
				return err
			}
			fmt.Printf("simulation %s reset\n", args[0])
			return nil
		},
	}
	cmd.Flags().IntVar(&households, "households", 10, "number of households to reseed")
	cmd.Flags().BoolVar(&allowFallback, "allow-fallback-for-missing", false, "tolerate missing script bindings by falling back to baseline decisions")
	return cmd
}

func newDeleteSimulationCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-simulation <simulation-id>",
		Short: "Delete a simulation and its state from both store tiers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnv()
			if err != nil {
				return err
			}
			defer env.Close()
			if err := env.orch.DeleteSimulation(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("simulation %s deleted\n", args[0])
			return nil
		},
	}
}

func newGetStateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get-state <simulation-id>",
		Short: "Print a simulation's current macro aggregates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			w, err := env.orch.GetState(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("households: %s\n", humanize.Comma(int64(len(w.Households))))
			fmt.Printf("gdp: %.2f  inflation: %.4f  unemployment: %.4f\n", w.Macro.GDP, w.Macro.Inflation, w.Macro.UnemploymentRate)
			fmt.Printf("price_index: %.4f  wage_index: %.4f\n", w.Macro.PriceIndex, w.Macro.WageIndex)
			return nil
		},
	}
}

func newRunTickCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run-tick <simulation-id>",
		Short: "Advance a simulation by exactly one tick",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			result, err := env.orch.RunTick(cmd.Context(), args[0], decision.AdminOverrides{})
			if err != nil {
				return err
			}
			fmt.Printf("tick=%s day=%s gdp=%.2f inflation=%.4f unemployment=%.4f\n",
				humanize.Comma(int64(result.NewTick)), humanize.Comma(int64(result.NewDay)),
				result.Macro.GDP, result.Macro.Inflation, result.Macro.UnemploymentRate)
			for _, l := range result.Logs {
				fmt.Printf("  %s %v\n", l.Message, l.Context)
			}
			return nil
		},
	}
}

func newRunDayCommand() *cobra.Command {
	var ticksInDay int
	cmd := &cobra.Command{
		Use:   "run-day <simulation-id>",
		Short: "Advance a simulation until the next day boundary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			result, err := env.orch.RunDay(cmd.Context(), args[0], ticksInDay)
			if err != nil {
				return err
			}
			fmt.Printf("ticks_executed=%s final_tick=%s final_day=%s gdp=%.2f unemployment=%.4f\n",
				humanize.Comma(int64(result.TicksExecuted)), humanize.Comma(int64(result.FinalTick)),
				humanize.Comma(int64(result.FinalDay)), result.Macro.GDP, result.Macro.UnemploymentRate)
			return nil
		},
	}
	cmd.Flags().IntVar(&ticksInDay, "ticks-in-day", 0, "cap on ticks executed (0 uses the simulation's configured ticks_per_day)")
	return cmd
}

func parseAgentKind(s string) (registry.AgentKind, error) {
	switch registry.AgentKind(s) {
	case registry.KindHousehold, registry.KindFirm, registry.KindBank, registry.KindCentralBank, registry.KindGovernment:
		return registry.AgentKind(s), nil
	default:
		return "", fmt.Errorf("unrecognized agent kind %q (want household, firm, bank, central_bank, or government)", s)
	}
}

func newRegisterScriptCommand() *cobra.Command {
	var simID, userID, kindStr, code string
	cmd := &cobra.Command{
		Use:   "register-script",
		Short: "Register a new user script, in a simulation or the caller's personal library",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			kind, err := parseAgentKind(kindStr)
			if err != nil {
				return err
			}
			sc, err := env.orch.RegisterScript(cmd.Context(), simID, userID, kind, code)
			if err != nil {
				return err
			}
			fmt.Printf("script_id=%s code_version=%s\n", sc.ScriptID, sc.CodeVersion)
			return nil
		},
	}
	cmd.Flags().StringVar(&simID, "simulation", "", "simulation id (empty registers into the user's personal library)")
	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	cmd.Flags().StringVar(&kindStr, "kind", "", "agent kind: household, firm, bank, central_bank, government")
	cmd.Flags().StringVar(&code, "code", "", "script source body")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("kind")
	cmd.MarkFlagRequired("code")
	return cmd
}

func newAttachScriptCommand() *cobra.Command {
	var kindStr, entityID, scriptID string
	cmd := &cobra.Command{
		Use:   "attach-script <simulation-id>",
		Short: "Bind a script to an (agent_kind, entity_id) pair, effective at the next day boundary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			kind, err := parseAgentKind(kindStr)
			if err != nil {
				return err
			}
			if err := env.orch.AttachScript(cmd.Context(), args[0], kind, entityID, scriptID); err != nil {
				return err
			}
			fmt.Printf("script %s attached to %s/%s\n", scriptID, kind, entityID)
			return nil
		},
	}
	cmd.Flags().StringVar(&kindStr, "kind", "", "agent kind")
	cmd.Flags().StringVar(&entityID, "entity", "", "entity id (household id, or the kind name for singleton agents)")
	cmd.Flags().StringVar(&scriptID, "script", "", "script id to attach")
	cmd.MarkFlagRequired("kind")
	cmd.MarkFlagRequired("entity")
	cmd.MarkFlagRequired("script")
	return cmd
}

func newDetachScriptCommand() *cobra.Command {
	var kindStr, entityID string
	cmd := &cobra.Command{
		Use:   "detach-script <simulation-id>",
		Short: "Remove a binding, reverting the entity to baseline fallback coverage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			kind, err := parseAgentKind(kindStr)
			if err != nil {
				return err
			}
			if err := env.orch.DetachScript(cmd.Context(), args[0], kind, entityID); err != nil {
				return err
			}
			fmt.Printf("%s/%s detached\n", kind, entityID)
			return nil
		},
	}
	cmd.Flags().StringVar(&kindStr, "kind", "", "agent kind")
	cmd.Flags().StringVar(&entityID, "entity", "", "entity id")
	cmd.MarkFlagRequired("kind")
	cmd.MarkFlagRequired("entity")
	return cmd
}

func newUpdateScriptCodeCommand() *cobra.Command {
	var simID, code string
	cmd := &cobra.Command{
		Use:   "update-script-code <script-id>",
		Short: "Edit a script's body (only permitted while the simulation sits at a day boundary)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			sc, err := env.orch.UpdateScriptCode(cmd.Context(), simID, args[0], code)
			if err != nil {
				return err
			}
			fmt.Printf("script_id=%s code_version=%s\n", sc.ScriptID, sc.CodeVersion)
			return nil
		},
	}
	cmd.Flags().StringVar(&simID, "simulation", "", "simulation id the script belongs to")
	cmd.Flags().StringVar(&code, "code", "", "new script source body")
	cmd.MarkFlagRequired("simulation")
	cmd.MarkFlagRequired("code")
	return cmd
}

func newDeleteScriptCommand() *cobra.Command {
	var simID, userID string
	cmd := &cobra.Command{
		Use:   "delete-script <script-id>",
		Short: "Delete a script, releasing the owner's quota slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			if err := env.orch.DeleteScript(cmd.Context(), simID, args[0], userID); err != nil {
				return err
			}
			fmt.Printf("script %s deleted\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&simID, "simulation", "", "simulation id the script belongs to")
	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newListScriptsCommand() *cobra.Command {
	var simID, userID string
	cmd := &cobra.Command{
		Use:   "list-scripts",
		Short: "List scripts, either every script in a simulation or a single user's scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			if userID != "" {
				scripts, err := env.orch.ListUserScripts(cmd.Context(), simID, userID)
				if err != nil {
					return err
				}
				for _, sc := range scripts {
					fmt.Printf("%s  kind=%s  version=%s  updated=%s\n", sc.ScriptID, sc.AgentKind, sc.CodeVersion, humanize.Time(sc.UpdatedAt))
				}
				return nil
			}
			scripts, err := env.orch.ListSimulationScripts(cmd.Context(), simID)
			if err != nil {
				return err
			}
			for _, sc := range scripts {
				fmt.Printf("%s  user=%s  kind=%s  version=%s  updated=%s\n", sc.ScriptID, sc.UserID, sc.AgentKind, sc.CodeVersion, humanize.Time(sc.UpdatedAt))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&simID, "simulation", "", "simulation id")
	cmd.Flags().StringVar(&userID, "user", "", "restrict to one user's scripts")
	cmd.MarkFlagRequired("simulation")
	return cmd
}

func newListTickLogsCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list-tick-logs <simulation-id>",
		Short: "Print the most recent persisted tick logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			ticks, err := env.orch.ListTickLogs(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			for _, entries := range ticks {
				for _, e := range entries {
					fmt.Printf("tick=%s day=%s %s %v\n", humanize.Comma(int64(e.Tick)), humanize.Comma(int64(e.Day)), e.Message, e.Context)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of ticks to return")
	return cmd
}

func newRegisterParticipantCommand() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "register-participant <simulation-id>",
		Short: "Record that a user is participating in a simulation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			if err := env.orch.RegisterParticipant(cmd.Context(), args[0], userID); err != nil {
				return err
			}
			fmt.Printf("%s registered as a participant of %s\n", userID, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newListParticipantsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list-participants <simulation-id>",
		Short: "List every registered participant of a simulation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			participants, err := env.orch.ListParticipants(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, p := range participants {
				fmt.Println(p)
			}
			return nil
		},
	}
}
