// Package completion prints shell completion scripts for cloudie.
package completion

import (
	"fmt"
	"io"
	"strings"
)

// Shells lists the supported shell names.
var Shells = []string{"bash", "zsh", "fish"}

// Write prints the completion script for shell to w.
func Write(w io.Writer, shell string) error {
	switch strings.ToLower(strings.TrimSpace(shell)) {
	case "bash":
		_, err := io.WriteString(w, BashCompletion)
		return err
	case "zsh":
		_, err := io.WriteString(w, ZshCompletion)
		return err
	case "fish":
		_, err := io.WriteString(w, FishCompletion)
		return err
	default:
		return fmt.Errorf("unsupported shell: %s (supported: %s)", shell, strings.Join(Shells, ", "))
	}
}

// Usage describes how to install the scripts.
const Usage = `Usage: cloudie completion <shell>
Supported shells: bash, zsh, fish

Installation examples:
  Bash: cloudie completion bash > ~/.local/share/bash-completion/completions/cloudie
  Zsh:  cloudie completion zsh > ~/.zsh/completion/_cloudie
  Fish: cloudie completion fish > ~/.config/fish/completions/cloudie.fish
`

// BashCompletion is the bash completion script.
const BashCompletion = `# cloudie bash completion
_cloudie_completion() {
    local cur prev words cword
    _init_completion || return

    local commands="fetch grab tasks login serve completion"
    local flags="-c --config -o --out --help"

    case "$prev" in
        -c|--config)
            COMPREPLY=($(compgen -f -X '!*.json' -- "$cur"))
            return
            ;;
        -o|--out)
            COMPREPLY=($(compgen -d -- "$cur"))
            return
            ;;
        --type)
            COMPREPLY=($(compgen -W "direct progressive hls" -- "$cur"))
            return
            ;;
        --preset)
            COMPREPLY=($(compgen -W "none opus_0_0 aac_160k mp3_1_0 mp3_0_0 mp3_0_1 mp3_standard abr_sq" -- "$cur"))
            return
            ;;
    esac

    local cmd=""
    local i
    for ((i = 1; i < cword; i++)); do
        case "${words[i]}" in
            fetch|grab|tasks|login|serve|completion)
                cmd="${words[i]}"
                break
                ;;
        esac
    done

    case "$cmd" in
        "")
            COMPREPLY=($(compgen -W "$commands $flags" -- "$cur"))
            ;;
        fetch)
            COMPREPLY=($(compgen -W "--url --type --preset --title --playlist" -- "$cur"))
            ;;
        grab)
            COMPREPLY=($(compgen -f -X '!*.txt' -- "$cur"))
            ;;
        tasks)
            COMPREPLY=($(compgen -W "list resume delete clear run" -- "$cur"))
            ;;
        login)
            COMPREPLY=($(compgen -W "--headless" -- "$cur"))
            ;;
        serve)
            COMPREPLY=($(compgen -W "--addr" -- "$cur"))
            ;;
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- "$cur"))
            ;;
    esac
}

complete -F _cloudie_completion cloudie
`

// ZshCompletion is the zsh completion script.
const ZshCompletion = `#compdef cloudie

_cloudie() {
    local -a commands
    commands=(
        'fetch:download one stream URL'
        'grab:queue and download SoundCloud tracks or playlists'
        'tasks:inspect and manage the download queue'
        'login:sign in to SoundCloud and store the OAuth token'
        'serve:serve the JSON API'
        'completion:print a shell completion script'
    )

    _arguments -C \
        '(-c --config)'{-c,--config}'[path to config.json]:config:_files -g "*.json"' \
        '(-o --out)'{-o,--out}'[override savePath for this run]:directory:_directories' \
        '1: :->command' \
        '*:: :->args'

    case $state in
        command)
            _describe -t commands 'cloudie command' commands
            ;;
        args)
            case $words[1] in
                fetch)
                    _arguments \
                        '--url[final stream URL]:url:' \
                        '--type[transport]:type:(direct progressive hls)' \
                        '--preset[quality preset]:preset:(none opus_0_0 aac_160k mp3_1_0 mp3_0_0 mp3_0_1 mp3_standard abr_sq)' \
                        '--title[file name without extension]:title:' \
                        '--playlist[playlist folder name]:playlist:'
                    ;;
                grab)
                    _files -g '*.txt'
                    ;;
                tasks)
                    _values 'action' list resume delete clear run
                    ;;
                login)
                    _arguments '--headless[run the browser without a window]'
                    ;;
                serve)
                    _arguments '--addr[listen address]:address:'
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
            esac
            ;;
    esac
}

_cloudie "$@"
`

// FishCompletion is the fish completion script.
const FishCompletion = `# cloudie fish completion
set -l commands fetch grab tasks login serve completion

complete -c cloudie -f
complete -c cloudie -s c -l config -r -d 'path to config.json'
complete -c cloudie -s o -l out -r -a '(__fish_complete_directories)' -d 'override savePath for this run'

complete -c cloudie -n "not __fish_seen_subcommand_from $commands" -a fetch -d 'download one stream URL'
complete -c cloudie -n "not __fish_seen_subcommand_from $commands" -a grab -d 'queue SoundCloud tracks or playlists'
complete -c cloudie -n "not __fish_seen_subcommand_from $commands" -a tasks -d 'manage the download queue'
complete -c cloudie -n "not __fish_seen_subcommand_from $commands" -a login -d 'sign in to SoundCloud'
complete -c cloudie -n "not __fish_seen_subcommand_from $commands" -a serve -d 'serve the JSON API'
complete -c cloudie -n "not __fish_seen_subcommand_from $commands" -a completion -d 'print a shell completion script'

complete -c cloudie -n "__fish_seen_subcommand_from fetch" -l url -r -d 'final stream URL'
complete -c cloudie -n "__fish_seen_subcommand_from fetch" -l type -r -a 'direct progressive hls'
complete -c cloudie -n "__fish_seen_subcommand_from fetch" -l preset -r -a 'none opus_0_0 aac_160k mp3_1_0 mp3_0_0 mp3_0_1 mp3_standard abr_sq'
complete -c cloudie -n "__fish_seen_subcommand_from fetch" -l title -r
complete -c cloudie -n "__fish_seen_subcommand_from fetch" -l playlist -r
complete -c cloudie -n "__fish_seen_subcommand_from grab" -F
complete -c cloudie -n "__fish_seen_subcommand_from tasks" -a 'list resume delete clear run'
complete -c cloudie -n "__fish_seen_subcommand_from login" -l headless
complete -c cloudie -n "__fish_seen_subcommand_from serve" -l addr -r
complete -c cloudie -n "__fish_seen_subcommand_from completion" -a 'bash zsh fish'
`
