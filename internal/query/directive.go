package query

import "regexp"

// ApplyDirectives transforms a match stream sequentially, directive by
// directive, in source order. set! annotates, strip! rewrites, and
// select-adjacent! narrows the stream to its two capture groups.
//
// Open Question #2 (select-adjacent semantics) is resolved here: the
// result is the union of the two named capture groups — every match from
// either capture survives, annotated with the other capture's node types
// as context, and matches from any other capture are dropped.
func ApplyDirectives(matches []Match, dirs []Directive, regexCache map[string]*regexp.Regexp) ([]Match, error) {
	if len(dirs) == 0 {
		return matches, nil
	}
	if regexCache == nil {
		regexCache = make(map[string]*regexp.Regexp)
	}

	// A directive that fails is isolated: the stream proceeds with the
	// previous step's output, and the first failure is reported to the
	// caller once the whole list has run.
	var firstErr error
	out := matches
	for _, d := range dirs {
		var err error
		next := out
		switch d.Kind {
		case DirSet:
			next = applySet(out, d)
		case DirStrip:
			next, err = applyStrip(out, d, regexCache)
		case DirSelectAdjacent:
			next = applySelectAdjacent(out, d)
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = next
	}
	return out, firstErr
}

func applySet(matches []Match, d Directive) []Match {
	if len(d.Parameters) < 2 {
		return matches
	}
	key, value := d.Parameters[0], d.Parameters[1]
	out := make([]Match, len(matches))
	for i, m := range matches {
		if m.Capture != d.Capture {
			out[i] = m
			continue
		}
		m = cloneMatch(m)
		m.Metadata[key] = value
		m.DirectiveOutcomes = append(m.DirectiveOutcomes, Outcome{Kind: string(d.Kind), Capture: d.Capture, Applied: true, Detail: key + "=" + value})
		out[i] = m
	}
	return out
}

func applyStrip(matches []Match, d Directive, regexCache map[string]*regexp.Regexp) ([]Match, error) {
	if len(d.Parameters) == 0 {
		return matches, nil
	}
	re, err := compileCached(d.Parameters[0], regexCache)
	if err != nil {
		return nil, err
	}
	out := make([]Match, len(matches))
	for i, m := range matches {
		if m.Capture != d.Capture {
			out[i] = m
			continue
		}
		m = cloneMatch(m)
		before := m.ProcessedText
		if before == "" {
			before = m.OriginalText
		}
		m.ProcessedText = re.ReplaceAllString(before, "")
		m.DirectiveOutcomes = append(m.DirectiveOutcomes, Outcome{Kind: string(d.Kind), Capture: d.Capture, Applied: before != m.ProcessedText})
		out[i] = m
	}
	return out, nil
}

// applySelectAdjacent replaces the match list with the union of the
// directive's two capture groups — every match whose capture is one of the
// two named parameters survives, everything else is dropped — recording
// each survivor's counterpart node types as adjacency context.
// select-adjacent names both captures as parameters rather than
// designating a target, since its semantics pair the two groups.
func applySelectAdjacent(matches []Match, d Directive) []Match {
	if len(d.Parameters) < 2 {
		return matches
	}
	left, right := d.Parameters[0], d.Parameters[1]

	var leftTypes, rightTypes []string
	for _, m := range matches {
		switch m.Capture {
		case left:
			leftTypes = append(leftTypes, m.NodeType)
		case right:
			rightTypes = append(rightTypes, m.NodeType)
		}
	}

	var out []Match
	for _, m := range matches {
		var counterparts []string
		switch m.Capture {
		case left:
			counterparts = rightTypes
		case right:
			counterparts = leftTypes
		default:
			continue
		}
		m = cloneMatch(m)
		m.AdjacentNodes = append(m.AdjacentNodes, counterparts...)
		m.DirectiveOutcomes = append(m.DirectiveOutcomes, Outcome{Kind: string(d.Kind), Capture: m.Capture, Applied: true})
		out = append(out, m)
	}
	return out
}
