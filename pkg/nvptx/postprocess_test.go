package nvptx

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRewriteModuleDirectives(t *testing.T) {
	in := "//\n.version 6.4\n.target sm_75\n.address_size 64\n\n.visible .entry k()\n"
	got := rewriteModuleDirectives(in, 73, "sm_80")
	want := "//\n.version 7.3\n.target sm_80\n.address_size 64\n\n.visible .entry k()\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("directive rewrite mismatch (-want +got):\n%s", diff)
	}
	if strings.Count(got, ".version") != 1 {
		t.Errorf("want exactly one .version line, got %d", strings.Count(got, ".version"))
	}
}

func TestStripInlineAsmMarkers(t *testing.T) {
	in := strings.Join([]string{
		"\tld.global.f32 %f1, [%rd1];",
		"\t// begin inline asm",
		"\tmembar.gl;",
		"\t// end inline asm",
		"\tadd.rn.f32 %f2, %f1, %f1;",
		"\t// begin inline asm",
		"\tmov.u32 %r1, %clock;",
		"\t// end inline asm",
		"\tst.global.f32 [%rd2], %f2;",
		"\t// begin inline asm",
		"\tbar.sync 0;",
		"\t// end inline asm",
		"\tret;",
		"",
	}, "\n")

	got := stripInlineAsmMarkers(in)
	want := strings.Join([]string{
		"\tld.global.f32 %f1, [%rd1];",
		"\tmembar.gl;",
		"\tadd.rn.f32 %f2, %f1, %f1;",
		"\tmov.u32 %r1, %clock;",
		"\tst.global.f32 [%rd2], %f2;",
		"\tbar.sync 0;",
		"\tret;",
		"",
	}, "\n")

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("marker strip mismatch (-want +got):\n%s", diff)
	}
	if strings.Contains(got, "inline asm") {
		t.Error("marker text survived stripping")
	}
}

func TestStripInlineAsmMarkersNoMarkers(t *testing.T) {
	in := "\tret;\n"
	if got := stripInlineAsmMarkers(in); got != in {
		t.Errorf("marker-free text changed: %q", got)
	}
}

func TestFindAndReplace(t *testing.T) {
	got, ok := findAndReplace("a .target sm_75\nb", ".target", "\n", ".target sm_80\n")
	if !ok || got != "a .target sm_80\nb" {
		t.Errorf("findAndReplace = %q, %v", got, ok)
	}
	if _, ok := findAndReplace("nothing here", ".target", "\n", "x"); ok {
		t.Error("findAndReplace reported a replacement on absent needle")
	}
}
