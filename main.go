package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/Pheeck/smtgcc/internal/checker"
	"github.com/Pheeck/smtgcc/internal/config"
	"github.com/Pheeck/smtgcc/internal/diag"
	"github.com/Pheeck/smtgcc/internal/ir"
	"github.com/Pheeck/smtgcc/internal/riscv"
)

func main() {
	cfg := config.FromEnv()
	log := diag.New(os.Stderr, cfg.Verbose)

	app := &cli.App{
		Name:  "smtgcc",
		Usage: "translation validation for compiled functions",
		Commands: []*cli.Command{
			checkCommand(log),
			dumpCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func checkCommand(log *diag.Logger) *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "check that compiled assembly refines the source IR",
		ArgsUsage: "<src-ir-file> <asm-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "unsigned-params",
				Usage: "comma-separated indices of parameters the ABI zero-extends",
			},
		},
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 2 {
				return errors.New("check needs a source IR file and an assembly file")
			}
			srcPath := ctx.Args().Get(0)
			asmPath := ctx.Args().Get(1)

			m, err := readModule(srcPath)
			if err != nil {
				return err
			}
			if len(m.Functions) != 1 {
				return errors.Errorf("%s must hold exactly one function", srcPath)
			}
			src := m.Functions[0]
			src.Rename("src")

			paramIsUnsigned, err := paramSignedness(src, ctx.String("unsigned-params"))
			if err != nil {
				return err
			}

			_, err = riscv.ParseFile(asmPath, m, paramIsUnsigned)
			if diag.IsNotImplemented(err) {
				// No verdict is claimed for constructs outside the
				// supported subset.
				log.Warningf("%s: skipped: %v", asmPath, err)
				return nil
			}
			if err != nil {
				return err
			}

			c := checker.New(log)
			msg, err := c.CheckRefine(m)
			if err != nil {
				return err
			}
			if msg != "" {
				fmt.Println(msg)
			}
			return nil
		},
	}
}

func dumpCommand() *cli.Command {
	return &cli.Command{
		Name:      "dump",
		Usage:     "parse an IR file and pretty-print it",
		ArgsUsage: "<ir-file>",
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 1 {
				return errors.New("dump needs an IR file")
			}
			m, err := readModule(ctx.Args().Get(0))
			if err != nil {
				return err
			}
			fmt.Print(ir.FormatModule(m))
			return nil
		},
	}
}

func readModule(path string) (*ir.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return ir.ParseModule(path, string(data))
}

// paramSignedness builds the per-parameter zero-extension table the
// assembly front end needs, from a comma-separated index list.
func paramSignedness(src *ir.Function, list string) ([]bool, error) {
	nofParams := 0
	for inst := src.Bbs[0].FirstInst; inst != nil; inst = inst.Next {
		if inst.Op == ir.OpParam {
			if n := int(inst.Args[0].ValueUint64()) + 1; n > nofParams {
				nofParams = n
			}
		}
	}
	isUnsigned := make([]bool, nofParams)
	if list == "" {
		return isUnsigned, nil
	}
	for _, s := range strings.Split(list, ",") {
		idx, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, errors.Errorf("bad parameter index %q", s)
		}
		if idx < 0 || idx >= nofParams {
			return nil, errors.Errorf("parameter index %d out of range", idx)
		}
		isUnsigned[idx] = true
	}
	return isUnsigned, nil
}
