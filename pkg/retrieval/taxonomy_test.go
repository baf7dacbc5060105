package retrieval

import "testing"

func TestBuildTaxonomyTreeLeafOnlyBranch(t *testing.T) {
	cats := []CategoryCount{
		{Category: "profile.health", Count: 2},
		{Category: "profile.lifestyle", Count: 3},
	}
	tree := BuildTaxonomyTree(cats, 0, 0)
	want := "profile/ (5) — health, lifestyle"
	if tree != want {
		t.Fatalf("got %q want %q", tree, want)
	}
}

func TestBuildTaxonomyTreeCollapsesDeepBranches(t *testing.T) {
	cats := []CategoryCount{
		{Category: "projects.myapp.backend.auth", Count: 1},
	}
	tree := BuildTaxonomyTree(cats, 2, 0)
	want := "projects/ (1)\n│   ├── myapp/ (1)\n│   │   ├── backend/ (1) [+1 more → explore_taxonomy('projects.myapp.backend')]"
	if tree != want {
		t.Fatalf("got %q want %q", tree, want)
	}
}

func TestBuildTaxonomyTreeLeafNode(t *testing.T) {
	cats := []CategoryCount{{Category: "reference", Count: 4}}
	tree := BuildTaxonomyTree(cats, 0, 0)
	if tree != "reference [4]" {
		t.Fatalf("got %q", tree)
	}
}
