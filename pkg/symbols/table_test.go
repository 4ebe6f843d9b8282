// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package symbols

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/scalpel/pkg/frontend"
	"github.com/kraklabs/scalpel/pkg/lang"
	"github.com/kraklabs/scalpel/pkg/pir"
)

func lowerUnit(t *testing.T, language, unit, code string) *pir.Tree {
	t.Helper()
	fe, err := frontend.ForLanguage(language)
	require.NoError(t, err)
	native, err := fe.Parse(context.Background(), []byte(code), frontend.Options{AcceptPartial: true})
	require.NoError(t, err)
	defer native.Close()
	tree, err := pir.Lower(native, unit)
	require.NoError(t, err)
	return tree
}

func TestQualifiedNamesAndKinds(t *testing.T) {
	tree := lowerUnit(t, lang.Python, "app/views.py", `def get_user(uid):
    return uid

class UserService:
    def fetch(self, uid):
        return get_user(uid)
`)
	table := Build(map[string]*pir.Tree{"app/views.py": tree})

	fn := table.Lookup("python::app.views::get_user")
	require.NotNil(t, fn)
	assert.Equal(t, KindFunction, fn.Kind)
	assert.Equal(t, "public", fn.Visibility)

	method := table.Lookup("python::app.views::UserService::fetch")
	require.NotNil(t, method)
	assert.Equal(t, KindMethod, method.Kind)

	cls := table.Lookup("python::app.views::UserService")
	require.NotNil(t, cls)
	assert.Equal(t, KindClass, cls.Kind)
}

func TestBindingResolvesInnermostScope(t *testing.T) {
	tree := lowerUnit(t, lang.Python, "m.py", `x = 1

def f(x):
    return x
`)
	Build(map[string]*pir.Tree{"m.py": tree})

	// The x inside f binds to the parameter, not the module variable.
	var returnUse *pir.Node
	tree.Walk(tree.Root(), func(id pir.NodeID, n *pir.Node) bool {
		if n.Kind == pir.KindName && n.Name == "x" && n.Binding == "python::m::f::x" {
			returnUse = n
		}
		return true
	})
	require.NotNil(t, returnUse, "parameter binding should win inside the function")
}

func TestCrossFileImportResolution(t *testing.T) {
	db := lowerUnit(t, lang.Python, "app/db.py", "def get_conn():\n    return None\n")
	views := lowerUnit(t, lang.Python, "app/views.py", `from app.db import get_conn

def handler():
    return get_conn()
`)
	table := Build(map[string]*pir.Tree{"app/db.py": db, "app/views.py": views})

	// The call site's name binds through the import to the declaration.
	bound := ""
	views.Walk(views.Root(), func(id pir.NodeID, n *pir.Node) bool {
		if n.Kind == pir.KindName && n.Name == "get_conn" && n.Binding != "" {
			bound = n.Binding
		}
		return true
	})
	assert.Equal(t, "python::app.db::get_conn", bound)
	assert.NotNil(t, table.Lookup("python::app.db::get_conn"))
}

func TestUnresolvedImportBindsExternal(t *testing.T) {
	tree := lowerUnit(t, lang.Python, "m.py", "import requests\n\nx = requests\n")
	table := Build(map[string]*pir.Tree{"m.py": tree})

	ext := table.Lookup("python::external::requests")
	require.NotNil(t, ext)
	assert.Equal(t, KindExternalModule, ext.Kind)

	found := false
	for _, d := range table.Diags {
		if d.Code == "unresolved_import" {
			found = true
		}
	}
	assert.True(t, found, "non-stdlib unresolved import is flagged")
}

func TestCircularImportReported(t *testing.T) {
	a := lowerUnit(t, lang.Python, "a.py", "import b\n\ndef fa():\n    return 1\n")
	b := lowerUnit(t, lang.Python, "b.py", "import a\n\ndef fb():\n    return 2\n")
	table := Build(map[string]*pir.Tree{"a.py": a, "b.py": b})

	cycles := 0
	for _, d := range table.Diags {
		if d.Code == "circular_import" {
			cycles++
		}
	}
	assert.GreaterOrEqual(t, cycles, 2, "both cycle members are reported")
	// Resolution still completes: both modules keep their symbols.
	assert.NotNil(t, table.Lookup("python::a::fa"))
	assert.NotNil(t, table.Lookup("python::b::fb"))
}

func TestNameCollisionWarning(t *testing.T) {
	tree := lowerUnit(t, lang.Python, "m.py", "def f():\n    return 1\n\ndef f():\n    return 2\n")
	table := Build(map[string]*pir.Tree{"m.py": tree})

	found := false
	for _, d := range table.Diags {
		if d.Code == "name_collision" {
			found = true
		}
	}
	assert.True(t, found)
	// Later declaration wins: the symbol still resolves.
	assert.NotNil(t, table.Lookup("python::m::f"))
}

func TestPrivateVisibility(t *testing.T) {
	tree := lowerUnit(t, lang.Python, "m.py", "def _hidden():\n    return 1\n")
	table := Build(map[string]*pir.Tree{"m.py": tree})
	sym := table.Lookup("python::m::_hidden")
	require.NotNil(t, sym)
	assert.Equal(t, "private", sym.Visibility)
}

func TestRelativeImportResolution(t *testing.T) {
	util := lowerUnit(t, lang.Python, "pkg/util.py", "def helper():\n    return 1\n")
	mod := lowerUnit(t, lang.Python, "pkg/mod.py", "from .util import helper\n\ndef f():\n    return helper()\n")
	_ = Build(map[string]*pir.Tree{"pkg/util.py": util, "pkg/mod.py": mod})

	bound := ""
	mod.Walk(mod.Root(), func(id pir.NodeID, n *pir.Node) bool {
		if n.Kind == pir.KindName && n.Name == "helper" && n.Binding != "" {
			bound = n.Binding
		}
		return true
	})
	assert.Equal(t, "python::pkg.util::helper", bound)
}
