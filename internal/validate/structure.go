package validate

import (
	"strconv"
	"strings"

	"github.com/agentic-research/cspec/internal/diag"
	"github.com/agentic-research/cspec/internal/graph"
)

// allowedParents lists the level kinds that may contain a level of the given kind.
var allowedParents = map[graph.LevelKind][]graph.LevelKind{
	graph.LevelPart:     {graph.LevelBase},
	graph.LevelChapter:  {graph.LevelBase, graph.LevelPart},
	graph.LevelAppendix: {graph.LevelBase, graph.LevelPart},
	graph.LevelPreface:  {graph.LevelBase, graph.LevelPart},
	graph.LevelSection:  {graph.LevelChapter, graph.LevelAppendix, graph.LevelPreface, graph.LevelSection},
	graph.LevelProcess:  {graph.LevelChapter, graph.LevelAppendix, graph.LevelPreface, graph.LevelSection},
}

type structure struct {
	cfg  Config
	log  *diag.Log
	spec *graph.ContentSpec
}

func (s *structure) errorf(line int, format string, args ...any) {
	s.log.Errorf(diag.KindStructural, line, format, args...)
}

func (s *structure) run() {
	if s.cfg.AllowDuplicateLevelTitles {
		s.spec.AssignDuplicateSuffixes()
	}
	for _, l := range s.spec.Levels() {
		s.checkLevel(l)
	}
	s.checkSiblingTitles(s.spec.Root)
	s.addProcessRelationships()
	s.checkTopics()
	s.checkTargetIDs()
	s.checkRelationshipTargets()
}

func (s *structure) checkLevel(l *graph.Level) {
	if !l.LevelKind.Valid() || l.LevelKind == graph.LevelBase {
		s.errorf(l.Line(), "level %q has an unrecognised kind", l.Title)
		return
	}
	if strings.TrimSpace(l.Title) == "" {
		s.errorf(l.Line(), "%s has no title", l.LevelKind)
	}
	if p := l.Parent(); p != nil && !kindIn(p.LevelKind, allowedParents[l.LevelKind]) {
		s.errorf(l.Line(), "%s %q cannot be placed inside a %s", l.LevelKind, l.Title, describe(p))
	}
	if l.LevelKind == graph.LevelPart {
		for _, t := range l.ChildTopics() {
			if t.Line() != l.Line() {
				s.errorf(t.Line(), "part %q may only contain chapters and appendices", l.Title)
			}
		}
	}
	if l.LevelKind == graph.LevelProcess && len(l.ChildLevels()) > 0 {
		s.errorf(l.Line(), "process %q may only contain topics", l.Title)
	}
	if l.IsEmpty() && !s.cfg.AllowEmptyLevels {
		s.errorf(l.Line(), "%s %q is empty", l.LevelKind, l.Title)
	}
}

func describe(l *graph.Level) string {
	if l.LevelKind == graph.LevelBase {
		return "book"
	}
	return l.LevelKind.String()
}

func kindIn(k graph.LevelKind, kinds []graph.LevelKind) bool {
	for _, c := range kinds {
		if c == k {
			return true
		}
	}
	return false
}

// checkSiblingTitles rejects sibling levels whose escaped titles collide without
// a differentiating duplicate suffix.
func (s *structure) checkSiblingTitles(l *graph.Level) {
	seen := make(map[string]*graph.Level)
	for _, c := range l.ChildLevels() {
		key := c.EscapedTitle() + c.DuplicateSuffix
		if first, ok := seen[key]; ok {
			s.errorf(c.Line(), "%s %q has the same title as the %s on line %d", c.LevelKind, c.Title, first.LevelKind, first.Line())
		} else {
			seen[key] = c
		}
		s.checkSiblingTitles(c)
	}
}

// addProcessRelationships links consecutive topics of every process with
// implicit NEXT and PREVIOUS relationships.
func (s *structure) addProcessRelationships() {
	for _, l := range s.spec.Levels() {
		if l.LevelKind != graph.LevelProcess {
			continue
		}
		topics := l.ChildTopics()
		for i, t := range topics {
			if hasImplicit(t) {
				continue
			}
			if i+1 < len(topics) {
				t.AddRelationship(implicitRelationship(graph.RelationshipNext, t, topics[i+1]))
			}
			if i > 0 {
				t.AddRelationship(implicitRelationship(graph.RelationshipPrevious, t, topics[i-1]))
			}
		}
	}
}

func hasImplicit(t *graph.TopicRef) bool {
	for _, r := range t.Relationships {
		if r.Implicit {
			return true
		}
	}
	return false
}

func implicitRelationship(typ graph.RelationshipType, from, to *graph.TopicRef) *graph.Relationship {
	r := graph.NewRelationship(typ, []string{to.IdentityTag()}, from.Line(), from.Text())
	r.Implicit = true
	r.Targets[0].Topic = to
	return r
}

func (s *structure) checkTopics() {
	families := make(map[string]*graph.TopicRef)
	existing := make(map[string]int)
	topics := s.spec.Topics()

	for _, t := range topics {
		id := t.Identity
		if !id.Valid() {
			s.errorf(t.Line(), "invalid topic identifier %q", id.Raw)
			continue
		}
		for key := range t.UnknownOptions {
			s.errorf(t.Line(), "topic %q has unknown option %q", t.Title, key)
		}

		switch id.Kind {
		case graph.IdentityNew:
			if strings.TrimSpace(t.Title) == "" {
				s.errorf(t.Line(), "new topic %s has no title", id.Tag())
			}
			if strings.TrimSpace(t.Type) == "" {
				s.errorf(t.Line(), "new topic %q has no type", t.Title)
			}
			if t.Pinned() {
				s.errorf(t.Line(), "new topic %q cannot reference a revision", t.Title)
			}
			if id.HasNumber {
				s.claimFamily(families, t)
			}
		case graph.IdentityCloned:
			if t.Pinned() {
				s.errorf(t.Line(), "cloned topic %q cannot reference a revision", t.Title)
			}
			s.claimFamily(families, t)
		case graph.IdentityExisting:
			tag := id.Tag()
			if n := existing[tag]; n > 0 {
				t.DuplicateSuffix = "-" + strconv.Itoa(n)
			}
			existing[tag]++
		case graph.IdentityDuplicate, graph.IdentityDuplicateOfCloned:
		}
	}

	for _, t := range topics {
		k := t.Identity.Kind
		if k != graph.IdentityDuplicate && k != graph.IdentityDuplicateOfCloned {
			continue
		}
		if _, ok := families[t.Identity.FamilyTag()]; !ok {
			s.errorf(t.Line(), "duplicate %s has no matching %s topic", t.IdentityTag(), t.Identity.FamilyTag())
		}
	}
}

func (s *structure) claimFamily(families map[string]*graph.TopicRef, t *graph.TopicRef) {
	tag := t.IdentityTag()
	if first, ok := families[tag]; ok {
		s.errorf(t.Line(), "topic identifier %s is already used on line %d", tag, first.Line())
		return
	}
	families[tag] = t
}

func (s *structure) checkTargetIDs() {
	for id, nodes := range s.spec.NodesByTargetID() {
		if len(nodes) < 2 {
			continue
		}
		for _, n := range nodes[1:] {
			s.errorf(n.Line(), "target id %s is already used on line %d", id, nodes[0].Line())
		}
	}
}

// checkRelationshipTargets verifies every written relationship target exists
// somewhere in the tree, resolved or not.
func (s *structure) checkRelationshipTargets() {
	byTag := s.spec.TopicsByTag()
	byTarget := s.spec.NodesByTargetID()

	for _, r := range s.spec.Relationships() {
		if r.Implicit {
			continue
		}
		for _, target := range r.Targets {
			exists := false
			if graph.IsTargetID(target.Raw) {
				exists = len(byTarget[strings.ToUpper(target.Raw)]) > 0
			} else if id := graph.ParseIdentity(target.Raw); id.Valid() {
				exists = len(byTag[id.Tag()]) > 0
			}
			if exists {
				if isSelf(r, target.Raw, byTag, byTarget) {
					s.errorf(r.Line(), "topic %q has a %s relationship to itself", r.Source.Title, r.Type)
				}
				continue
			}
			if s.cfg.Permissive {
				s.log.Warnf(diag.KindStructural, r.Line(), "%s relationship target %s does not exist", r.Type, target.Raw)
				continue
			}
			s.errorf(r.Line(), "%s relationship target %s does not exist", r.Type, target.Raw)
		}
	}
}

func isSelf(r *graph.Relationship, raw string, byTag map[string][]*graph.TopicRef, byTarget map[string][]graph.Node) bool {
	var nodes []graph.Node
	if graph.IsTargetID(raw) {
		nodes = byTarget[strings.ToUpper(raw)]
	} else {
		for _, t := range byTag[graph.ParseIdentity(raw).Tag()] {
			nodes = append(nodes, t)
		}
	}
	return len(nodes) == 1 && nodes[0] == graph.Node(r.Source)
}
