package applets

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Grep implements a subset of grep: -i, -n, -c, -v, -r/-R, -l, -e <pattern>,
// and combined short flags (e.g. -in).
func Grep(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var (
		caseInsensitive  bool
		lineNumbers      bool
		countOnly        bool
		invert           bool
		recursive        bool
		filesWithMatches bool
		pattern          string
		havePattern      bool
		files            []string
	)

	applyShort := func(ch rune) bool {
		switch ch {
		case 'i':
			caseInsensitive = true
		case 'n':
			lineNumbers = true
		case 'c':
			countOnly = true
		case 'v':
			invert = true
		case 'r', 'R':
			recursive = true
		case 'l':
			filesWithMatches = true
		default:
			return false
		}

		return true
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch {
		case arg == "-e":
			i++
			if i >= len(args) {
				return fail(stderr, "grep: option requires an argument -- 'e'")
			}

			pattern, havePattern = args[i], true
		case strings.HasPrefix(arg, "-") && len(arg) > 1:
			for _, ch := range arg[1:] {
				if !applyShort(ch) {
					return fail(stderr, "grep: invalid option -- '%c'", ch)
				}
			}
		default:
			if !havePattern {
				pattern, havePattern = arg, true
			} else {
				files = append(files, arg)
			}
		}
	}

	if !havePattern {
		return fail(stderr, "grep: missing pattern")
	}

	expr := pattern
	if caseInsensitive {
		expr = "(?i)" + expr
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return fail(stderr, "grep: invalid pattern: %v", err)
	}

	if len(files) == 0 {
		files = append(files, "-")
	}

	if recursive {
		files = expandDirs(files)
	}

	showFilename := len(files) > 1
	foundMatch := false

	for _, file := range files {
		if file != "-" {
			if info, statErr := os.Stat(file); statErr == nil && info.IsDir() {
				continue
			}
		}

		reader, closeFn, err := openOrStdin(file, stdin)
		if err != nil {
			fmt.Fprintf(stderr, "grep: %s: %v\n", file, err)

			continue
		}

		if searchReader(reader, file, re, showFilename, lineNumbers, countOnly, invert, filesWithMatches, stdout) {
			foundMatch = true
		}

		closeFn()
	}

	if foundMatch {
		return 0
	}

	return 1
}

func expandDirs(files []string) []string {
	var expanded []string

	for _, file := range files {
		if file == "-" {
			expanded = append(expanded, file)

			continue
		}

		info, err := os.Stat(file)
		if err == nil && info.IsDir() {
			filepath.WalkDir(file, func(path string, d os.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return nil
				}

				expanded = append(expanded, path)

				return nil
			})
		} else {
			expanded = append(expanded, file)
		}
	}

	return expanded
}

func searchReader(r io.Reader, filename string, re *regexp.Regexp, showFilename, lineNumbers, countOnly, invert, filesWithMatches bool, stdout io.Writer) bool {
	matchCount := 0
	lineNum := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		matches := re.MatchString(line)
		if invert {
			matches = !matches
		}

		if !matches {
			continue
		}

		matchCount++

		if filesWithMatches {
			fmt.Fprintln(stdout, filename)

			return true
		}

		if !countOnly {
			var prefix string

			switch {
			case showFilename && lineNumbers:
				prefix = fmt.Sprintf("%s:%d:", filename, lineNum)
			case showFilename:
				prefix = filename + ":"
			case lineNumbers:
				prefix = fmt.Sprintf("%d:", lineNum)
			}

			fmt.Fprintf(stdout, "%s%s\n", prefix, line)
		}
	}

	if countOnly {
		if showFilename {
			fmt.Fprintf(stdout, "%s:%d\n", filename, matchCount)
		} else {
			fmt.Fprintln(stdout, matchCount)
		}
	}

	return matchCount > 0
}

// Find implements a subset of find: -name <glob>, -type f|d|l, -maxdepth <n>.
func Find(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var (
		paths       []string
		namePattern string
		haveName    bool
		typeFilter  byte
		maxDepth    = -1
	)

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-name":
			i++
			if i >= len(args) {
				return fail(stderr, "find: missing argument to '-name'")
			}

			namePattern, haveName = args[i], true
		case "-type":
			i++
			if i >= len(args) {
				return fail(stderr, "find: missing argument to '-type'")
			}

			typeFilter = args[i][0]
		case "-maxdepth":
			i++
			if i >= len(args) {
				return fail(stderr, "find: missing argument to '-maxdepth'")
			}

			d := 0

			if _, err := fmt.Sscanf(args[i], "%d", &d); err != nil {
				return fail(stderr, "find: invalid argument to '-maxdepth': '%s'", args[i])
			}

			maxDepth = d
		default:
			if strings.HasPrefix(args[i], "-") {
				return fail(stderr, "find: unknown predicate '%s'", args[i])
			}

			paths = append(paths, args[i])
		}
	}

	if len(paths) == 0 {
		paths = append(paths, ".")
	}

	for _, root := range paths {
		rootDepth := strings.Count(filepath.Clean(root), string(filepath.Separator))

		filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}

			if maxDepth >= 0 {
				depth := strings.Count(filepath.Clean(path), string(filepath.Separator)) - rootDepth
				if depth > maxDepth {
					if d.IsDir() {
						return filepath.SkipDir
					}

					return nil
				}
			}

			if typeFilter != 0 {
				switch typeFilter {
				case 'f':
					if d.IsDir() {
						return nil
					}
				case 'd':
					if !d.IsDir() {
						return nil
					}
				case 'l':
					if d.Type()&os.ModeSymlink == 0 {
						return nil
					}
				}
			}

			if haveName {
				matched, _ := filepath.Match(namePattern, d.Name())
				if !matched {
					return nil
				}
			}

			fmt.Fprintln(stdout, path)

			return nil
		})
	}

	return 0
}
