// Command orderctl submits phone orders from YAML files and prints their
// summary, copying it to the clipboard when the variant offers one.
//
//	orderctl submit -f order.yaml [-variant confirm] [-yes]
//	orderctl validate -f order.yaml
//	orderctl hash-password
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	_ "time/tzdata"

	"github.com/kunhuatsai-cpu/tilepark-order/internal/auth"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/clipboard"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/config"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/enum"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/order"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/sink"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/store"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/variant"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/workflow"
)

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "submit":
		err = runSubmit(os.Args[2:], false)
	case "validate":
		err = runSubmit(os.Args[2:], true)
	case "hash-password":
		err = runHashPassword(os.Stdin, os.Stdout)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: orderctl submit|validate -f order.yaml [-variant name] [-yes]")
	fmt.Fprintln(os.Stderr, "       orderctl hash-password")
}

func runSubmit(args []string, validateOnly bool) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	file := fs.String("f", "", "order file (YAML)")
	variantName := fs.String("variant", "", "form variant (overrides the file)")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	fs.Parse(args)

	if *file == "" {
		return errors.New("-f is required")
	}

	cfg := config.Load()
	variants, err := variant.Load(cfg.VariantsFile)
	if err != nil {
		return err
	}
	if cfg.DefaultVariant != "" {
		if err := variants.SetDefault(cfg.DefaultVariant); err != nil {
			return err
		}
	}

	f, err := readOrderFile(*file)
	if err != nil {
		return err
	}
	name := firstNonEmpty(*variantName, f.Variant, variants.Default().Name)
	profile, err := variants.Get(name)
	if err != nil {
		return err
	}

	ctx := context.Background()
	svc := workflow.NewService(store.NewMemoryStore(), sink.NewClient(cfg.SubmitTimeout), variants, cfg.Location())
	svc.SetSubmitTimeout(cfg.SubmitTimeout)

	sess, err := svc.Start(ctx, name)
	if err != nil {
		return err
	}
	if sess, err = fillSession(ctx, svc, sess, f); err != nil {
		return err
	}

	if validateOnly {
		if err := order.Validate(sess.Draft, profile.Options.EnableStockHoldMode); err != nil {
			return explain(err)
		}
		fmt.Println("OK")
		return nil
	}

	sess, err = svc.RequestSubmit(ctx, sess.ID)
	if err != nil {
		return explain(err)
	}
	if sess.Phase == enum.PhaseConfirming {
		fmt.Println(order.ConfirmationNotice(sess.Draft, profile.Options.EnableStockHoldMode))
		if !*yes && !ask(os.Stdin, os.Stdout, "確認送出？ [y/N] ") {
			if _, err := svc.Cancel(ctx, sess.ID); err != nil {
				return err
			}
			fmt.Println("已取消")
			return nil
		}
		if sess, err = svc.Confirm(ctx, sess.ID); err != nil {
			return explain(err)
		}
	}

	fmt.Printf("訂單編號：%s\n", sess.Result.OrderID)
	if profile.Options.EnableClipboardSummary {
		text := order.Summary(sess.Result)
		fmt.Println()
		fmt.Println(text)
		fmt.Println()
		fmt.Println(clipboard.New().Copy(text).Message)
	}
	if profile.DeepLink != "" {
		fmt.Printf("客服：%s\n", profile.DeepLink)
	}
	return nil
}

// explain turns workflow errors into messages for the operator.
func explain(err error) error {
	var verr *order.ValidationError
	switch {
	case errors.As(err, &verr):
		return fmt.Errorf("請填寫所有必填欄位: %s", strings.Join(verr.Missing, ", "))
	case errors.Is(err, workflow.ErrSubmissionFailed):
		return fmt.Errorf("系統忙碌中，請稍後再試或聯繫客服。 (%w)", err)
	}
	return err
}

func ask(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func runHashPassword(in io.Reader, out io.Writer) error {
	fmt.Fprint(os.Stderr, "password: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("password is empty")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, hash)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
