package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"battery/internal/participant"
)

func newParticipantCommand(ctx *commandContext) *cobra.Command {
	participantCmd := &cobra.Command{
		Use:   "participant",
		Short: "Participant biodata utilities",
	}

	participantCmd.AddCommand(newParticipantRegisterCommand(ctx))
	participantCmd.AddCommand(newParticipantShowCommand(ctx))

	return participantCmd
}

func newParticipantRegisterCommand(ctx *commandContext) *cobra.Command {
	rec := &participant.Record{}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Record a participant's biodata before their first session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			rec.ID = strings.TrimSpace(rec.ID)
			rec.CreatedAt = time.Now()
			dir := cfg.ParticipantDir(rec.ID)
			if err := participant.Save(dir, rec); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded biodata for %s at %s\n",
				rec.ID, participant.BiodataPath(dir))
			return nil
		},
	}

	cmd.Flags().StringVarP(&rec.ID, "id", "i", "", "Participant identifier (required)")
	cmd.Flags().StringVar(&rec.DateOfBirthOrAge, "dob", "", "Date of birth or age")
	cmd.Flags().StringVar(&rec.Sex, "sex", "", "Sex")
	cmd.Flags().StringVar(&rec.Handedness, "handedness", "", "Handedness")
	cmd.Flags().StringVar(&rec.PrimaryLanguage, "language", "", "Primary language")
	cmd.Flags().StringVar(&rec.EducationLevel, "education", "", "Education level")
	cmd.Flags().StringVar(&rec.VisionStatus, "vision", "", "Vision status")
	cmd.Flags().StringVar(&rec.ColorBlindness, "color-blindness", "", "Colour blindness status")
	cmd.Flags().StringVar(&rec.Notes, "notes", "", "Free-form notes")
	cmd.Flags().BoolVar(&rec.Consented, "consent", false, "Participant has given informed consent")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newParticipantShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <participant>",
		Short: "Show recorded biodata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			rec, err := participant.Load(cfg.ParticipantDir(id))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			rows := [][]string{
				{"Participant ID", rec.ID},
				{"Date of Birth / Age", rec.DateOfBirthOrAge},
				{"Sex", rec.Sex},
				{"Handedness", rec.Handedness},
				{"Primary Language", rec.PrimaryLanguage},
				{"Education Level", rec.EducationLevel},
				{"Vision Status", rec.VisionStatus},
				{"Colour Blindness", rec.ColorBlindness},
				{"Notes", rec.Notes},
				{"Consented", fmt.Sprintf("%t", rec.Consented)},
			}
			fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows,
				[]columnAlignment{alignLeft, alignLeft}))
			return nil
		},
	}
}
