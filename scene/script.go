package scene

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	lua "github.com/yuin/gopher-lua"
)

// LoadScript reads a Lua scene description from path. See ParseScript.
func LoadScript(path string) (*Scene, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}
	return ParseScript(path, string(src))
}

// ParseScript runs a Lua scene description and builds the scene it
// declares. Primitives are appended in call order:
//
//	sphere   { radius = 0.5, translate = {0, 0, 3} }
//	box      { half = {1, 0.2, 1}, rotate = {axis = {0, 1, 0}, degrees = 30} }
//	triangle { a = {-1, -1, 4}, b = {1, -1, 4}, c = {0, 1, 4} }
//
// Every constructor accepts optional translate, scale and rotate fields,
// applied as translate * rotate * scale. Only the base, math, string and
// table libraries are available.
func ParseScript(name, src string) (*Scene, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.MathLibName, lua.OpenMath},
		{lua.StringLibName, lua.OpenString},
		{lua.TabLibName, lua.OpenTable},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	var entries []Entry
	declare := func(build func(*lua.LState, *lua.LTable) Primitive) lua.LGFunction {
		return func(L *lua.LState) int {
			tbl := L.CheckTable(1)
			p := build(L, tbl)
			entries = append(entries, Place(p, placement(L, tbl)))
			return 0
		}
	}

	L.SetGlobal("sphere", L.NewFunction(declare(func(L *lua.LState, t *lua.LTable) Primitive {
		return Sphere{Radius: number(L, t, "radius", 1)}
	})))
	L.SetGlobal("box", L.NewFunction(declare(func(L *lua.LState, t *lua.LTable) Primitive {
		return Box{HalfExtents: vec3(L, t, "half", mgl32.Vec3{1, 1, 1})}
	})))
	L.SetGlobal("triangle", L.NewFunction(declare(func(L *lua.LState, t *lua.LTable) Primitive {
		return Triangle{
			A: vec3(L, t, "a", mgl32.Vec3{0, 0, 0}),
			B: vec3(L, t, "b", mgl32.Vec3{1, 0, 0}),
			C: vec3(L, t, "c", mgl32.Vec3{0, 1, 0}),
		}
	})))

	fn, err := L.Load(strings.NewReader(src), name)
	if err != nil {
		return nil, fmt.Errorf("scene: %s: %w", name, err)
	}
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return nil, fmt.Errorf("scene: %s: %w", name, err)
	}

	return New(entries...)
}

// placement reads translate, rotate and scale from t.
func placement(L *lua.LState, t *lua.LTable) mgl32.Mat4 {
	translate := vec3(L, t, "translate", mgl32.Vec3{})
	scale := vec3(L, t, "scale", mgl32.Vec3{1, 1, 1})

	rotate := mgl32.Ident4()
	if r, ok := t.RawGetString("rotate").(*lua.LTable); ok {
		axis := vec3(L, r, "axis", mgl32.Vec3{0, 1, 0})
		if axis.Len() == 0 {
			L.RaiseError("rotate.axis must not be zero")
		}
		rotate = mgl32.HomogRotate3D(mgl32.DegToRad(number(L, r, "degrees", 0)), axis.Normalize())
	}

	return mgl32.Translate3D(translate[0], translate[1], translate[2]).
		Mul4(rotate).
		Mul4(mgl32.Scale3D(scale[0], scale[1], scale[2]))
}

func number(L *lua.LState, t *lua.LTable, key string, def float32) float32 {
	switch v := t.RawGetString(key).(type) {
	case *lua.LNilType:
		return def
	case lua.LNumber:
		return float32(v)
	default:
		L.RaiseError("%s must be a number, got %s", key, v.Type())
		return def
	}
}

func vec3(L *lua.LState, t *lua.LTable, key string, def mgl32.Vec3) mgl32.Vec3 {
	switch v := t.RawGetString(key).(type) {
	case *lua.LNilType:
		return def
	case *lua.LTable:
		var out mgl32.Vec3
		for i := range out {
			n, ok := v.RawGetInt(i + 1).(lua.LNumber)
			if !ok {
				L.RaiseError("%s[%d] must be a number", key, i+1)
			}
			out[i] = float32(n)
		}
		return out
	default:
		L.RaiseError("%s must be a table of 3 numbers, got %s", key, v.Type())
		return def
	}
}
