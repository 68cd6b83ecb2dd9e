package maincmd

import (
	"context"
	"fmt"
	gotoken "go/token"
	"os"

	"github.com/mna/corvid/lang/scanner"
	"github.com/mna/corvid/lang/token"
	"github.com/mna/mainer"
)

func (c *Cmd) Tokenize(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return TokenizeFiles(ctx, stdio, args...)
}

// goPos adapts a single-file Position to go/token.Position, the type
// go/scanner.ErrorList (aliased as scanner.ErrorList) requires.
func goPos(p token.Position) gotoken.Position {
	return gotoken.Position{Filename: p.Filename, Line: p.Line, Column: p.Col}
}

// TokenizeFiles runs the scanner over each file in turn and prints one line
// per token, in the form "file:line:col: KIND [literal]". Scanning continues
// to EOF even after an error is reported, so a file with several lexical
// errors reports all of them in one run (this command, unlike compile, has
// no reason to stop at the first one).
func TokenizeFiles(ctx context.Context, stdio mainer.Stdio, files ...string) error {
	var errs scanner.ErrorList
	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			errs.Add(goPos(token.Position{Filename: file}), err.Error())
			continue
		}

		var s scanner.Scanner
		s.Init(file, src, func(pos token.Position, msg string) {
			errs.Add(goPos(pos), msg)
		})
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			tok, val := s.Scan()
			fmt.Fprintf(stdio.Stdout, "%s: %s", val.Pos, tok)
			if tok == token.IDENT || tok == token.STRING || tok == token.INT || tok == token.FLOAT || tok == token.CHAR {
				fmt.Fprintf(stdio.Stdout, " %s", literalOf(tok, val))
			}
			fmt.Fprintln(stdio.Stdout)
			if tok == token.EOF {
				break
			}
		}
	}
	if len(errs) > 0 {
		errs.Sort()
		scanner.PrintError(stdio.Stderr, errs)
		return errs
	}
	return nil
}

func literalOf(tok token.Token, val scanner.Value) string {
	switch tok {
	case token.INT:
		return fmt.Sprintf("%d", val.Int)
	case token.FLOAT:
		return fmt.Sprintf("%g", val.Float)
	default:
		return val.Str
	}
}
