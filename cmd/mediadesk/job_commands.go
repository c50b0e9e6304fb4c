package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mediadesk/internal/audio"
	"mediadesk/internal/config"
	"mediadesk/internal/coordinator"
	"mediadesk/internal/protocol"
	"mediadesk/internal/subtitles"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var formatFlag string

	cmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Convert a media file and save it to the output directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := protocol.ParseFormat(formatFlag)
			if err != nil {
				return err
			}
			file, err := openInput(args[0])
			if err != nil {
				return err
			}
			a, err := ctx.openApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()
			stop := a.coord.Subscribe(newProgressView(cmd.ErrOrStderr()).observe)
			defer stop()

			out, err := a.coord.Convert(cmd.Context(), file, format)
			if err != nil {
				return err
			}
			location, err := a.coord.Save(cmd.Context(), out.Name(), out.Bytes())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", location, out.MediaType())
			return nil
		},
	}
	cmd.Flags().StringVarP(&formatFlag, "format", "f", string(protocol.FormatMP3), "Target format (mp3, wav, m4a, mp4, mov, mkv)")
	return cmd
}

func newExtractAudioCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "extract-audio <file>",
		Short: "Extract 16 kHz mono speech audio from a media file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := openInput(args[0])
			if err != nil {
				return err
			}
			a, err := ctx.openApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()
			stop := a.coord.Subscribe(newProgressView(cmd.ErrOrStderr()).observe)
			defer stop()

			samples, err := a.coord.ExtractAudio(cmd.Context(), file)
			if err != nil {
				return err
			}
			content, err := encodeSamples(a.cfg, samples)
			if err != nil {
				return err
			}
			name := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name())) + "_16k.wav"
			location, err := a.coord.Save(cmd.Context(), name, content)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Extracted %.1fs of audio to %s\n", audio.Duration(samples), location)
			return nil
		},
	}
}

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var modelFlag string
	var formatFlag string
	var saveFlag bool

	cmd := &cobra.Command{
		Use:   "transcribe <file>",
		Short: "Transcribe speech from a media file or WAV recording",
		Long: "Transcribe speech with whisper.cpp. Media files are first reduced to 16 kHz mono audio " +
			"by the media engine; WAV files are decoded directly.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := subtitles.ParseExportFormat(formatFlag)
			if err != nil {
				return err
			}
			file, err := openInput(args[0])
			if err != nil {
				return err
			}
			a, err := ctx.openApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()
			stop := a.coord.Subscribe(newProgressView(cmd.ErrOrStderr()).observe)
			defer stop()

			var transcript *coordinator.Transcript
			if strings.EqualFold(filepath.Ext(file.Name()), ".wav") {
				samples, decodeErr := audio.Handoff(cmd.Context(), nil, file)
				if decodeErr != nil {
					return decodeErr
				}
				transcript, err = a.coord.Transcribe(cmd.Context(), samples, modelFlag)
			} else {
				transcript, err = a.coord.TranscribeMedia(cmd.Context(), file, modelFlag)
			}
			if err != nil {
				return err
			}

			body, err := subtitles.Render(format, transcript.Text, transcript.Segments)
			if err != nil {
				return err
			}
			if !saveFlag {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			location, err := a.coord.Save(cmd.Context(), subtitles.TranscriptFileName(time.Now(), format), body)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", location)
			return nil
		},
	}
	cmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Model id or tier (fast, balanced, accurate); defaults to transcription.default_model")
	cmd.Flags().StringVarP(&formatFlag, "format", "f", string(subtitles.ExportText), "Output format (txt, srt, json)")
	cmd.Flags().BoolVar(&saveFlag, "save", false, "Save the transcript to the output directory instead of printing it")
	return cmd
}

func openInput(arg string) (*protocol.FileBlob, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, errors.New("input file is required")
	}
	path, err := config.ExpandPath(arg)
	if err != nil {
		return nil, err
	}
	blob, err := protocol.NewFileBlob(path)
	if err != nil {
		return nil, fmt.Errorf("open input %q: %w", arg, err)
	}
	return blob, nil
}

// encodeSamples renders samples as a 16-bit WAV through a scratch file in the
// work directory.
func encodeSamples(cfg *config.Config, samples []float32) ([]byte, error) {
	tmp, err := os.CreateTemp(cfg.Paths.WorkDir, "extract-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create scratch wav: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := audio.EncodeWAV(tmp, samples, audio.TargetSampleRate); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(tmp); err != nil {
		return nil, fmt.Errorf("read scratch wav: %w", err)
	}
	return buf.Bytes(), nil
}
