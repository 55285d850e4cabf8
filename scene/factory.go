package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/softsim/components"
	"github.com/pthm-cable/softsim/config"
	"github.com/pthm-cable/softsim/granular"
	"github.com/pthm-cable/softsim/mesh"
	"github.com/pthm-cable/softsim/xpbd"
)

// spawn builds body b shifted by offset and adds it to the world.
// seedOffset decorrelates ball pits built from the same config seed.
func (s *Scene) spawn(b config.BodyConfig, offset mgl32.Vec3, seedOffset int64, spawned bool) (ecs.Entity, error) {
	origin := config.Vec3(b.Origin).Add(offset)

	if b.Kind == config.KindBallPit {
		pc := granular.Config{
			Radius:      float32(b.Radius),
			Min:         origin,
			Max:         config.Vec3(b.Max).Add(offset),
			InitVelRand: float32(b.InitVelRand),
			Seed:        s.cfg.Sim.Seed + seedOffset,
		}
		if _, err := granular.LatticeCounts(pc); err != nil {
			return ecs.Entity{}, err
		}
		pit := granular.New(pc)
		s.logger.Debug("ball pit built", "name", b.Name, "balls", pit.Len())
		return s.ballsMapper.NewEntity(&components.Balls{Name: b.Name, Pit: pit}), nil
	}

	params := s.params
	params.Compliance = s.cfg.BodyCompliance(b)
	params.SelfCollision = b.SelfCollision

	var (
		p    *xpbd.Particles
		set  *xpbd.Set
		skin *components.Skin
	)
	switch b.Kind {
	case config.KindGridCloth, config.KindCloth:
		plane, err := parsePlane(b.Plane)
		if err != nil {
			return ecs.Entity{}, err
		}
		g := mesh.ClothGrid(b.NumX, b.NumY, float32(b.Spacing), origin, plane)
		opts := xpbd.ClothOptions{AttachCorners: b.Attach}
		if b.Kind == config.KindGridCloth {
			p, set = xpbd.NewGridCloth(g, opts)
		} else {
			p, set = xpbd.NewCloth(&g.TriMesh, opts)
		}

	case config.KindSoftBox:
		spacing := float32(b.Spacing)
		m := mesh.TetBox(b.NX, b.NY, b.NZ, spacing, origin)
		p, set = xpbd.NewSoftBody(m)
		if b.Skin {
			// twice the resolution of the tets, so most vertices sit inside one
			visual := mesh.TetBox(2*b.NX, 2*b.NY, 2*b.NZ, spacing/2, origin).SurfaceMesh()
			skin = &components.Skin{
				Binding: mesh.NewSkin(p.Pos, m.Tets, visual.Verts, spacing),
				Mesh:    visual,
			}
		}

	default:
		return ecs.Entity{}, fmt.Errorf("unknown body kind %q", b.Kind)
	}

	body := &components.Body{
		Name:    b.Name,
		Kind:    b.Kind,
		Solver:  xpbd.NewSolver(p, set, s.frameTime, s.cfg.Sim.Substeps, params),
		Spawned: spawned,
	}
	s.logger.Debug("body built",
		"name", b.Name,
		"kind", b.Kind,
		"particles", p.Len(),
		"constraints", set.Len(),
		"skin", skin != nil,
	)

	if skin != nil {
		skin.Binding.Update(p.Pos, skin.Mesh.Verts)
		return s.skinMapper.NewEntity(body, skin), nil
	}
	return s.bodyMapper.NewEntity(body), nil
}

func parsePlane(name string) (mesh.Plane, error) {
	switch name {
	case "", "xy":
		return mesh.PlaneXY, nil
	case "xz":
		return mesh.PlaneXZ, nil
	default:
		return 0, fmt.Errorf("unknown plane %q", name)
	}
}
