package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"autopilot/pkg/config"
)

func cmdSecrets(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: autopilot secrets <set|list> [flags]")
	}
	switch args[0] {
	case "set":
		return cmdSecretsSet(args[1:])
	case "list":
		return cmdSecretsList(args[1:])
	default:
		return fmt.Errorf("unknown secrets subcommand %q", args[0])
	}
}

func cmdSecretsSet(args []string) error {
	fs := flag.NewFlagSet("secrets set", flag.ExitOnError)
	projectDir := fs.String("projectdir", ".", "Project directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: autopilot secrets set NAME")
	}
	name := fs.Arg(0)

	var secrets map[string]string
	var password string
	if config.SecretsFileExists(*projectDir) {
		var err error
		password, err = promptPassword("Project password: ")
		if err != nil {
			return err
		}
		secrets, err = config.DecryptSecretsFile(*projectDir, password)
		if err != nil {
			return err
		}
	} else {
		var err error
		password, err = newPassword()
		if err != nil {
			return err
		}
		secrets = make(map[string]string)
	}

	value, err := promptPassword(fmt.Sprintf("Value for %s: ", name))
	if err != nil {
		return err
	}
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("empty value")
	}
	secrets[name] = value

	if err := config.EncryptSecretsFile(*projectDir, password, secrets); err != nil {
		return err
	}
	fmt.Printf("Stored %s (%d secret(s) total)\n", name, len(secrets))
	return nil
}

func cmdSecretsList(args []string) error {
	fs := flag.NewFlagSet("secrets list", flag.ExitOnError)
	projectDir := fs.String("projectdir", ".", "Project directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !config.SecretsFileExists(*projectDir) {
		fmt.Println("No secrets file.")
		return nil
	}
	password, err := promptPassword("Project password: ")
	if err != nil {
		return err
	}
	secrets, err := config.DecryptSecretsFile(*projectDir, password)
	if err != nil {
		return err
	}
	for name := range secrets {
		fmt.Println(name)
	}
	return nil
}

// loadSecrets decrypts the project secrets file into memory when one
// exists. Sessions fall back to environment variables otherwise.
func loadSecrets(projectDir string) error {
	if !config.SecretsFileExists(projectDir) {
		return nil
	}
	password, err := promptPassword("Project password: ")
	if err != nil {
		return err
	}
	secrets, err := config.DecryptSecretsFile(projectDir, password)
	if err != nil {
		return err
	}
	config.SetDecryptedSecrets(secrets)
	return nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	if term.IsTerminal(syscall.Stdin) {
		data, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(data), nil
	}
	// Non-interactive input (pipes, CI).
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newPassword() (string, error) {
	for attempt := 1; attempt <= 3; attempt++ {
		first, err := promptPassword("New project password: ")
		if err != nil {
			return "", err
		}
		second, err := promptPassword("Confirm password: ")
		if err != nil {
			return "", err
		}
		if first == second && first != "" {
			return first, nil
		}
		fmt.Println("Passwords do not match. Try again.")
	}
	return "", fmt.Errorf("passwords did not match after 3 attempts")
}
