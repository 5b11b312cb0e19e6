package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rowmap/internal/catalog"
)

// EntitySummary describes one loaded entity.
type EntitySummary struct {
	Name       string `json:"name"`
	Connection string `json:"connection,omitempty"`
	Table      string `json:"table"`
	Fields     int    `json:"fields"`
}

// ValidationError is one catalog error with its source location.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Entities []EntitySummary   `json:"entities,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <catalog-dir>",
		Short: "Validate an entity catalog",
		Long: `Load the CUE entity catalog in a directory and report every invalid
entity with its source position. Valid entities are listed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	c, loadErrs := catalog.LoadDir(dir, catalog.CollectAll)
	if c == nil && len(loadErrs) > 0 {
		code, message := errorCode(loadErrs[0])
		return formatter.fail(catalogExit(code), code, message, nil)
	}

	result := ValidationResult{Valid: len(loadErrs) == 0}
	for _, e := range c.Entities() {
		formatter.VerboseLog("Loaded entity: %s", e.Name())
		result.Entities = append(result.Entities, EntitySummary{
			Name:       e.Name(),
			Connection: e.Connection(),
			Table:      e.Table(),
			Fields:     len(e.Fields()),
		})
	}
	for _, err := range loadErrs {
		result.Errors = append(result.Errors, validationError(err))
	}

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Catalog valid: %d entity(ies)\n", len(result.Entities))
	for _, e := range result.Entities {
		fmt.Fprintf(formatter.Writer, "  %s: %s (%d field(s))\n", e.Name, qualifiedTable(e), e.Fields)
	}
	return nil
}

func qualifiedTable(e EntitySummary) string {
	if e.Connection == "" {
		return e.Table
	}
	return e.Connection + "/" + e.Table
}

func validationError(err error) ValidationError {
	var le *catalog.LoadError
	if !errors.As(err, &le) {
		return ValidationError{Code: catalog.ErrCodeGeneric, Message: err.Error()}
	}
	ve := ValidationError{Code: le.Code, Message: le.Message}
	if le.Pos.IsValid() {
		ve.File = le.Pos.Filename()
		ve.Line = le.Pos.Line()
		ve.Column = le.Pos.Column()
	}
	return ve
}

func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	if formatter.JSON() {
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		err := encoder.Encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: result.Errors[0].Code, Message: result.Errors[0].Message},
		})
		if err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, ve := range result.Errors {
		if ve.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", ve.File, ve.Line, ve.Column)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", ve.Code, ve.Message)
	}
	return failure
}
